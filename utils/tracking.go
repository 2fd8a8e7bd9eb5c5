package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// TrackingPixelURL returns the open-tracking pixel URL for a message.
func TrackingPixelURL(baseURL, messageID string) string {
	return fmt.Sprintf("%s/track/open/%s/%s", baseURL, messageID, trackingToken(messageID))
}

// ClickTrackURL wraps a link so the click is recorded before redirecting.
func ClickTrackURL(baseURL, messageID, originalURL string) string {
	return fmt.Sprintf("%s/track/click/%s/%s?url=%s",
		baseURL, messageID, trackingToken(messageID), url.QueryEscape(originalURL))
}

// InjectTracking rewrites links for click tracking and appends an open
// pixel to the message body.
func InjectTracking(htmlContent, baseURL, messageID string) string {
	pixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`,
		TrackingPixelURL(baseURL, messageID))
	return rewriteLinks(htmlContent, baseURL, messageID) + pixel
}

func rewriteLinks(html, baseURL, messageID string) string {
	const startTag = `<a href="`
	const endTag = `"`
	offset := 0

	for {
		startIdx := strings.Index(html[offset:], startTag)
		if startIdx == -1 {
			break
		}
		startIdx += offset + len(startTag)

		endIdx := strings.Index(html[startIdx:], endTag)
		if endIdx == -1 {
			break
		}
		endIdx += startIdx

		tracked := ClickTrackURL(baseURL, messageID, html[startIdx:endIdx])
		html = html[:startIdx] + tracked + html[endIdx:]
		offset = startIdx + len(tracked)
	}

	return html
}

func trackingToken(messageID string) string {
	hash := sha256.Sum256([]byte(uuid.New().String() + messageID))
	return base64.URLEncoding.EncodeToString(hash[:])[:20]
}
