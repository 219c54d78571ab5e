package runspec

import (
	"fmt"
	"net/url"
	"strings"

	"handout/internal/services"
)

// SourceKind names a SourceDescriptor variant.
type SourceKind string

const (
	KindDirectFile          SourceKind = "direct_file"
	KindRemoteURL           SourceKind = "remote_url"
	KindSegmentedStream     SourceKind = "segmented_stream"
	KindAuthenticatedStream SourceKind = "authenticated_stream"
)

// Source describes where a run's video comes from. Only the fields relevant
// to Kind are populated.
type Source struct {
	Kind       SourceKind `json:"kind"`
	Path       string     `json:"path,omitempty"`
	URL        string     `json:"url,omitempty"`
	BaseURL    string     `json:"base_url,omitempty"`
	Credential string     `json:"credential,omitempty"`
	DeliveryID string     `json:"delivery_id,omitempty"`
}

// DirectFile returns a source for a local video file.
func DirectFile(path string) Source {
	return Source{Kind: KindDirectFile, Path: strings.TrimSpace(path)}
}

// RemoteURL returns a source for a plain HTTP(S) download.
func RemoteURL(rawURL string) Source {
	return Source{Kind: KindRemoteURL, URL: strings.TrimSpace(rawURL)}
}

// SegmentedStream returns a source for an HLS manifest.
func SegmentedStream(rawURL string) Source {
	return Source{Kind: KindSegmentedStream, URL: strings.TrimSpace(rawURL)}
}

// AuthenticatedStream returns a source resolved through a lecture platform's
// delivery info endpoint.
func AuthenticatedStream(baseURL, credential, deliveryID string) Source {
	return Source{
		Kind:       KindAuthenticatedStream,
		BaseURL:    strings.TrimSpace(baseURL),
		Credential: strings.TrimSpace(credential),
		DeliveryID: strings.TrimSpace(deliveryID),
	}
}

// InferSource maps free-form CLI input onto a source kind. URLs mentioning
// m3u8 are treated as segmented streams, other http(s) URLs as remote files,
// and anything else as a local path.
func InferSource(value string) Source {
	value = strings.TrimSpace(value)
	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		if strings.Contains(lower, "m3u8") {
			return SegmentedStream(value)
		}
		return RemoteURL(value)
	}
	return DirectFile(value)
}

// Validate reports whether the fields required by Kind are present.
func (s Source) Validate() error {
	switch s.Kind {
	case KindDirectFile:
		if strings.TrimSpace(s.Path) == "" {
			return invalid("direct file source requires a path")
		}
	case KindRemoteURL, KindSegmentedStream:
		if err := validateHTTPURL(s.URL); err != nil {
			return invalid(fmt.Sprintf("%s source: %v", s.Kind, err))
		}
	case KindAuthenticatedStream:
		if err := validateHTTPURL(s.BaseURL); err != nil {
			return invalid(fmt.Sprintf("authenticated source base url: %v", err))
		}
		if strings.TrimSpace(s.Credential) == "" {
			return invalid("authenticated source requires a credential")
		}
		if strings.TrimSpace(s.DeliveryID) == "" {
			return invalid("authenticated source requires a delivery id")
		}
	case "":
		return invalid("source kind is required")
	default:
		return invalid(fmt.Sprintf("unknown source kind %q", s.Kind))
	}
	return nil
}

// Authenticated reports whether the source identity comes from the platform
// rather than the content hash.
func (s Source) Authenticated() bool {
	return s.Kind == KindAuthenticatedStream
}

// Display returns a short human-readable form that never includes credentials.
func (s Source) Display() string {
	switch s.Kind {
	case KindDirectFile:
		return s.Path
	case KindRemoteURL, KindSegmentedStream:
		return s.URL
	case KindAuthenticatedStream:
		return strings.TrimRight(s.BaseURL, "/") + " delivery " + s.DeliveryID
	default:
		return string(s.Kind)
	}
}

func validateHTTPURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}

func invalid(message string) error {
	return services.Wrap(services.ErrValidation, "", "source", message, nil)
}
