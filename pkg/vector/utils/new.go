package vectorutils

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"github.com/papercomputeco/cogniweave/pkg/vector"
	"github.com/papercomputeco/cogniweave/pkg/vector/chroma"
	"github.com/papercomputeco/cogniweave/pkg/vector/chromem"
	"github.com/papercomputeco/cogniweave/pkg/vector/qdrant"
	"github.com/papercomputeco/cogniweave/pkg/vector/sqlitevec"
)

// Supported provider names.
const (
	ProviderSQLite  = "sqlite"
	ProviderChromem = "chromem"
	ProviderQdrant  = "qdrant"
	ProviderChroma  = "chroma"
)

type NewVectorDriverOpts struct {
	ProviderType string

	// TargetURL is a file path for sqlite, a directory for chromem (empty
	// keeps it in memory), host:port for qdrant and a URL for chroma.
	TargetURL string

	// Index names the collection or namespace inside the backend.
	Index string

	APIKey string
	Logger *slog.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case ProviderSQLite, "":
		return sqlitevec.NewSQLiteVecDriver(ctx, sqlitevec.Config{
			DBPath: o.TargetURL,
		}, o.Logger)
	case ProviderChromem:
		return chromem.NewDriver(chromem.Config{
			Path:     o.TargetURL,
			Compress: true,
			Index:    o.Index,
		}, o.Logger)
	case ProviderQdrant:
		host, port, tls, err := splitQdrantTarget(o.TargetURL)
		if err != nil {
			return nil, err
		}
		return qdrant.NewDriver(qdrant.Config{
			Host:       host,
			Port:       port,
			APIKey:     o.APIKey,
			UseTLS:     tls,
			Collection: o.Index,
		}, o.Logger)
	case ProviderChroma:
		return chroma.NewDriver(chroma.Config{
			URL:            o.TargetURL,
			CollectionName: o.Index,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}

// splitQdrantTarget accepts "host", "host:port" or a grpc(s):// URL.
func splitQdrantTarget(target string) (string, int, bool, error) {
	useTLS := false
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		useTLS = u.Scheme == "https" || u.Scheme == "grpcs"
		target = u.Host
	}

	host, rawPort, err := net.SplitHostPort(target)
	if err != nil {
		return target, qdrant.DefaultPort, useTLS, nil
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid qdrant port %q: %w", rawPort, err)
	}
	return host, port, useTLS, nil
}
