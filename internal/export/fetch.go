package export

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/jackzampolin/bookbaker/internal/svcctx"
)

// fetchContent resolves an image reference. Three schemes are understood:
// http(s) URLs fetched with the shared client, base64:// inline payloads,
// and file:// local paths. The origin is sent as the Origin header since
// some hosts refuse hotlinked image requests without it.
func fetchContent(ctx context.Context, svc *svcctx.Services, url, origin string) ([]byte, error) {
	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Origin", origin)
		resp, err := svc.HTTPClient().Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch failed (status %d): %s", resp.StatusCode, url)
		}
		return io.ReadAll(resp.Body)

	case strings.HasPrefix(url, "base64://"):
		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "base64://"))
		if err != nil {
			return nil, fmt.Errorf("failed to decode inline image: %w", err)
		}
		return data, nil

	case strings.HasPrefix(url, "file://"):
		return os.ReadFile(strings.TrimPrefix(url, "file://"))

	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s", url)
	}
}
