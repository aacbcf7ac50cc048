package assets

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Fetch loads an asset from a base64 data URI or an http(s) URL and returns
// its bytes plus the extension implied by its media type, if known.
func Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if strings.HasPrefix(rawURL, "data:") {
		return decodeDataURI(rawURL)
	}
	return fetchHTTP(ctx, rawURL)
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest := strings.TrimPrefix(uri, "data:")
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("assets: invalid data URI: missing comma separator")
	}
	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("assets: only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("assets: invalid base64 data: %w", err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	ext := mimeToExt[mime]
	if ext == "" {
		return nil, "", fmt.Errorf("%w: media type %s", ErrUnsupported, mime)
	}
	return data, ext, nil
}

// fetchHTTP downloads a file over http(s), refusing loopback and cloud
// metadata hosts.
func fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("assets: invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("assets: unsupported scheme %q (only http/https)", parsed.Scheme)
	}
	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: dialControl}
	client := &http.Client{
		Timeout:   30 * time.Second,
		Transport: &http.Transport{DialContext: dialer.DialContext},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("assets: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("assets: download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("assets: download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("assets: read body: %w", err)
	}
	if len(data) > MaxSize {
		return nil, "", fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, MaxSize)
	}

	ext := mimeToExt[strings.Split(resp.Header.Get("Content-Type"), ";")[0]]
	return data, ext, nil
}

// checkBlockedHost rejects metadata host names and hosts whose addresses
// include a blocked one. Lookup failures are left to the client.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("assets: blocked host %s", host)
	}

	ips := []net.IP{net.ParseIP(host)}
	if ips[0] == nil {
		var err error
		if ips, err = net.LookupIP(host); err != nil {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
	}
	for _, ip := range ips {
		if err := blockedIP(ip); err != nil {
			return fmt.Errorf("%w (%s)", err, host)
		}
	}
	return nil
}

// dialControl re-checks the address actually dialled, so a name that
// resolves differently after checkBlockedHost still cannot reach a blocked
// address.
func dialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("assets: dial %s: %w", address, err)
	}
	return blockedIP(net.ParseIP(host))
}

func blockedIP(ip net.IP) error {
	switch {
	case ip == nil:
		return fmt.Errorf("assets: blocked host: unparsable address")
	case ip.IsLoopback():
		return fmt.Errorf("assets: blocked host: loopback address %s", ip)
	case ip.Equal(net.ParseIP("169.254.169.254")):
		return fmt.Errorf("assets: blocked host: cloud metadata address %s", ip)
	}
	return nil
}

// FilenameFromURL derives a file name from rawURL, falling back to a UUID
// with the given extension.
func FilenameFromURL(rawURL, fallbackExt string) string {
	if fallbackExt == "" {
		fallbackExt = ".bin"
	}
	if !strings.HasPrefix(rawURL, "data:") {
		if parsed, err := url.Parse(rawURL); err == nil {
			base := path.Base(parsed.Path)
			if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
				return base
			}
		}
	}
	return uuid.New().String() + fallbackExt
}
