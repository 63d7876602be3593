// Package video mirrors the connected video platform channel's uploads
// using the YouTube Data API.
package video

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/vantora/listings-worker/internal/sync"
)

const pageSize = 50

type Client struct{}

func NewClient() *Client {
	return &Client{}
}

// ListUploads lists one page of the channel's uploads playlist. The first
// call resolves the uploads playlist id from the authenticated channel.
func (c *Client) ListUploads(ctx context.Context, accessToken, pageToken string) (*sync.VideoPage, error) {
	token := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}

	service, err := youtube.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	channelResp, err := service.Channels.List([]string{"contentDetails"}).Mine(true).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	if len(channelResp.Items) == 0 {
		return &sync.VideoPage{}, nil
	}
	uploadsPlaylist := channelResp.Items[0].ContentDetails.RelatedPlaylists.Uploads
	if uploadsPlaylist == "" {
		return &sync.VideoPage{}, nil
	}

	call := service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
		PlaylistId(uploadsPlaylist).
		MaxResults(pageSize)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list playlist items: %w", err)
	}

	page := &sync.VideoPage{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		if item.Snippet == nil || item.ContentDetails == nil {
			continue
		}

		video := sync.VideoItem{
			ID:          item.ContentDetails.VideoId,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
		}
		if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.Default != nil {
			video.ThumbnailURL = item.Snippet.Thumbnails.Default.Url
		}
		if publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			video.PublishedAt = publishedAt
		}
		page.Videos = append(page.Videos, video)
	}
	return page, nil
}
