package h5p

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/rs/zerolog/log"
)

var (
	vimeoConfig  = regexp.MustCompile(`(?s)var config = (\{.+?\});`)
	vimeoPlayer  = regexp.MustCompile(`(?s)window\.playerConfig = (\{.+?\});`)
	vimeoVideoID = regexp.MustCompile(`video/(\d+)`)
)

type vimeoRendition struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
}

type vimeoPlayerConfig struct {
	Request struct {
		Files struct {
			Progressive []vimeoRendition `json:"progressive"`
		} `json:"files"`
	} `json:"request"`
}

// bestVimeoRendition parses the player configuration embedded in a Vimeo
// player page and returns its highest progressive rendition.
func bestVimeoRendition(page string) (vimeoRendition, bool) {
	m := vimeoConfig.FindStringSubmatch(page)
	if m == nil {
		m = vimeoPlayer.FindStringSubmatch(page)
	}
	if m == nil {
		return vimeoRendition{}, false
	}

	var cfg vimeoPlayerConfig
	if err := json.Unmarshal([]byte(m[1]), &cfg); err != nil {
		log.Debug().Err(err).Msg("Invalid Vimeo player configuration")
		return vimeoRendition{}, false
	}
	renditions := cfg.Request.Files.Progressive
	if len(renditions) == 0 {
		return vimeoRendition{}, false
	}
	sort.SliceStable(renditions, func(i, j int) bool { return renditions[i].Height > renditions[j].Height })
	return renditions[0], renditions[0].URL != ""
}

func vimeoFilename(playerURL string, r vimeoRendition) string {
	id := "video"
	if m := vimeoVideoID.FindStringSubmatch(playerURL); m != nil {
		id = m[1]
	}
	height := "hq"
	if r.Height > 0 {
		height = fmt.Sprint(r.Height)
	}
	return fmt.Sprintf("vimeo_%s_%s.mp4", id, height)
}

func (d *Downloader) downloadVimeo(ctx context.Context, playerURL, dir string) (string, bool) {
	player, err := d.client.Get(ctx, playerURL)
	if err != nil {
		log.Warn().Err(err).Str("url", playerURL).Msg("Failed to load Vimeo player")
		return "", false
	}
	best, ok := bestVimeoRendition(string(player.Body))
	if !ok {
		return "", false
	}

	name := vimeoFilename(playerURL, best)
	dest := filepath.Join(dir, name)
	if d.store.Exists(dest) {
		return name, true
	}

	resp, err := d.client.Open(ctx, best.URL)
	if err != nil {
		log.Warn().Err(err).Str("url", best.URL).Msg("Failed to download Vimeo video")
		return "", false
	}
	defer resp.Body.Close()
	return name, d.saveStream(ctx, dest, best.URL, resp.Body)
}
