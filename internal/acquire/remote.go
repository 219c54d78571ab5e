package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"handout/internal/logging"
	"handout/internal/services"
	"handout/internal/stage"
)

const (
	partSuffix     = ".part"
	downloadChunk  = 32 * 1024
	downloadStart  = 0.1
	downloadFinish = 0.9
)

// remote streams url into dest. A transfer that fails transiently is
// retried; each attempt continues from the part file with a Range request.
func (a *Acquirer) remote(ctx context.Context, rawURL, dest string, report stage.Reporter) (Result, error) {
	var err error
	for attempt := 1; attempt <= a.opts.SegmentAttempts; attempt++ {
		err = a.download(ctx, rawURL, dest, nil, report)
		if err == nil {
			return Result{VideoPath: dest}, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if !errors.Is(err, services.ErrTransient) || attempt == a.opts.SegmentAttempts {
			break
		}
		a.log(ctx).Info("download interrupted; resuming",
			logging.String(logging.FieldEventType, "download_resume"),
			logging.Int("attempt", attempt),
			logging.Error(err),
		)
		if err := a.sleep(ctx, a.retryDelay*time.Duration(attempt)); err != nil {
			return Result{}, err
		}
	}
	return Result{}, err
}

func (a *Acquirer) download(ctx context.Context, rawURL, dest string, header http.Header, report stage.Reporter) error {
	part := dest + partSuffix
	var offset int64
	if info, err := os.Stat(part); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, stage.Acquire, "build request", rawURL, err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if isCancelled(ctx, err) {
			return ctx.Err()
		}
		return services.Wrap(services.ErrTransient, stage.Acquire, "download", rawURL, err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	var total int64
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
		if resp.ContentLength > 0 {
			total = offset + resp.ContentLength
		}
	case http.StatusOK:
		flags |= os.O_TRUNC
		offset = 0
		total = resp.ContentLength
	case http.StatusRequestedRangeNotSatisfiable:
		// The part file already holds every byte.
		if offset > 0 {
			return finishPart(part, dest)
		}
		return services.Wrap(services.ErrTransient, stage.Acquire, "download", fmt.Sprintf("%s: status %d", rawURL, resp.StatusCode), nil)
	case http.StatusNotFound, http.StatusGone:
		return services.Wrap(services.ErrNotFound, stage.Acquire, "download", fmt.Sprintf("%s: status %d", rawURL, resp.StatusCode), nil)
	default:
		return services.Wrap(services.ErrTransient, stage.Acquire, "download", fmt.Sprintf("%s: status %d", rawURL, resp.StatusCode), nil)
	}

	file, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stage.Acquire, "open part file", part, err)
	}

	sampler := logging.NewProgressSampler(logging.DefaultProgressStep)
	received := offset
	buf := make([]byte, downloadChunk)
	for {
		if err := ctx.Err(); err != nil {
			file.Close()
			return err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				file.Close()
				return services.Wrap(services.ErrConfiguration, stage.Acquire, "write part file", part, err)
			}
			received += int64(n)
			if total > 0 {
				fraction := float64(received) / float64(total)
				if sampler.ShouldLog(stage.Acquire, fraction) {
					report(ctx, downloadStart+fraction*(downloadFinish-downloadStart),
						"Downloading video ("+strconv.Itoa(int(fraction*100))+"%)")
					a.log(ctx).Debug("download progress",
						logging.String(logging.FieldEventType, "download_progress"),
						logging.Int64("received_bytes", received),
						logging.Int64("total_bytes", total),
					)
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			file.Close()
			if isCancelled(ctx, readErr) {
				return ctx.Err()
			}
			return services.Wrap(services.ErrTransient, stage.Acquire, "download", "connection interrupted", readErr)
		}
	}
	if err := file.Close(); err != nil {
		return services.Wrap(services.ErrConfiguration, stage.Acquire, "close part file", part, err)
	}
	if total > 0 && received < total {
		return services.Wrap(services.ErrTransient, stage.Acquire, "download", fmt.Sprintf("short read: %d of %d bytes", received, total), nil)
	}
	return finishPart(part, dest)
}

func finishPart(part, dest string) error {
	if err := os.Rename(part, dest); err != nil {
		return services.Wrap(services.ErrConfiguration, stage.Acquire, "finalize download", dest, err)
	}
	return nil
}
