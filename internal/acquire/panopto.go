package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"handout/internal/logging"
	"handout/internal/runspec"
	"handout/internal/services"
	"handout/internal/stage"
)

const (
	deliveryInfoPath = "Panopto/Pages/Viewer/DeliveryInfo.aspx"
	authCookieName   = ".ASPXAUTH"
)

type deliveryInfo struct {
	ErrorCode    any    `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
	Delivery     struct {
		SessionName    string `json:"SessionName"`
		PodcastStreams []struct {
			StreamURL string `json:"StreamUrl"`
		} `json:"PodcastStreams"`
	} `json:"Delivery"`
}

// authenticated resolves a Panopto delivery to its stream URL and acquires
// it. The delivery id is the source identity.
func (a *Acquirer) authenticated(ctx context.Context, source runspec.Source, dest string, report stage.Reporter) (Result, error) {
	report(ctx, 0.02, "Getting delivery info")
	streamURL, err := a.resolveDelivery(ctx, source)
	if err != nil {
		return Result{}, err
	}
	var result Result
	if IsStreamURL(streamURL) {
		result, err = a.segmented(ctx, streamURL, dest, report)
	} else {
		result, err = a.remote(ctx, streamURL, dest, report)
	}
	if err != nil {
		return Result{}, err
	}
	result.SourceID = strings.TrimSpace(source.DeliveryID)
	return result, nil
}

func (a *Acquirer) resolveDelivery(ctx context.Context, source runspec.Source) (string, error) {
	endpoint, err := url.Parse(strings.TrimRight(strings.TrimSpace(source.BaseURL), "/") + "/" + deliveryInfoPath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, stage.Acquire, "build delivery url", source.BaseURL, err)
	}
	query := endpoint.Query()
	query.Set("deliveryId", source.DeliveryID)
	query.Set("responseType", "json")
	query.Set("getCaptions", "false")
	query.Set("language", "0")
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, stage.Acquire, "build delivery request", endpoint.String(), err)
	}
	req.AddCookie(&http.Cookie{Name: authCookieName, Value: source.Credential})

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if isCancelled(ctx, err) {
			return "", ctx.Err()
		}
		return "", services.Wrap(services.ErrTransient, stage.Acquire, "delivery info", source.Display(), err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", services.Wrap(services.ErrConfiguration, stage.Acquire, "delivery info", "credential rejected; refresh the .ASPXAUTH cookie", nil)
	case resp.StatusCode != http.StatusOK:
		return "", services.Wrap(services.ErrTransient, stage.Acquire, "delivery info", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var info deliveryInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", services.Wrap(services.ErrValidation, stage.Acquire, "decode delivery info", "unexpected response; the credential may have expired", err)
	}
	if msg := strings.TrimSpace(info.ErrorMessage); msg != "" {
		return "", services.Wrap(services.ErrNotFound, stage.Acquire, "delivery info", msg, nil)
	}
	if len(info.Delivery.PodcastStreams) == 0 || strings.TrimSpace(info.Delivery.PodcastStreams[0].StreamURL) == "" {
		return "", services.Wrap(services.ErrNotFound, stage.Acquire, "delivery info", "delivery has no podcast stream", nil)
	}
	streamURL := strings.TrimSpace(info.Delivery.PodcastStreams[0].StreamURL)
	a.log(ctx).Info("delivery resolved",
		logging.String(logging.FieldEventType, "delivery_resolved"),
		logging.String("session_name", info.Delivery.SessionName),
		logging.Bool("segmented", IsStreamURL(streamURL)),
	)
	return streamURL, nil
}
