package capture

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

// isYouTubeURL reports whether input is a YouTube watch or live link.
func isYouTubeURL(input string) bool {
	u, err := url.Parse(input)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	return host == "youtube.com" || host == "youtu.be"
}

// resolveYouTubeURL asks yt-dlp for the direct media URL of a YouTube link.
// Direct URLs expire, so this runs on every open.
func resolveYouTubeURL(ctx context.Context, bin, link string) (string, error) {
	if bin == "" {
		bin = "yt-dlp"
	}
	cmd := exec.CommandContext(ctx, bin,
		"--get-url",
		"--format", "best[height<=1080]",
		"--no-playlist",
		link,
	)

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("yt-dlp: %w", err)
	}

	// Separate video and audio URLs come back one per line; the first is video.
	direct, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n")
	direct = strings.TrimSpace(direct)
	if direct == "" {
		return "", fmt.Errorf("yt-dlp returned empty URL")
	}
	return direct, nil
}
