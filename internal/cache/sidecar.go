package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	ioutils "github.com/yplay/yplay/internal/io"
	"github.com/yplay/yplay/internal/model"
)

const sidecarName = "meta.json"

// sidecar is the metadata document written next to the audio.
type sidecar struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Uploader string `json:"uploader"`
	Duration *int   `json:"duration"`
	URL      string `json:"url"`
}

// rawSidecar accepts the shapes older versions wrote.
type rawSidecar struct {
	ID         string          `json:"id"`
	Title      *string         `json:"title"`
	Uploader   *string         `json:"uploader"`
	Duration   json.RawMessage `json:"duration"`
	URL        string          `json:"url"`
	WebpageURL string          `json:"webpage_url"`
}

func readSidecar(path string) (*sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw rawSidecar
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	sc := &sidecar{
		ID:       raw.ID,
		URL:      raw.URL,
		Duration: parseRawDuration(raw.Duration),
	}
	if raw.Title != nil {
		sc.Title = *raw.Title
	}
	if raw.Uploader != nil {
		sc.Uploader = *raw.Uploader
	}
	if sc.URL == "" {
		sc.URL = raw.WebpageURL
	}
	return sc, nil
}

func parseRawDuration(raw json.RawMessage) *int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	s := string(raw)
	if raw[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return nil
		}
		s = unq
	}
	if d, ok := model.ParseDuration(s); ok {
		return &d
	}
	return nil
}

func writeSidecar(path string, sc *sidecar) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	return ioutils.WriteFileAtomic(path, append(data, '\n'))
}

func sidecarFromInfo(info model.TrackInfo) *sidecar {
	return &sidecar{
		ID:       info.ID,
		Title:    info.Title,
		Uploader: info.Uploader,
		Duration: info.Duration,
		URL:      info.SourceURL(),
	}
}
