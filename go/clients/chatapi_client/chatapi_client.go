package chatapi_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguechat/go/clients"
	"github.com/mcdev12/leaguechat/go/internal/chat/events"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

// ChatApiClient talks to the league chat REST API
type ChatApiClient struct {
	*clients.BaseClient
}

func NewChatApiClient(baseURL string, token clients.TokenSource) *ChatApiClient {
	client := &ChatApiClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(ClientHeader, ClientName)
	client.SetTokenSource(token)

	return client
}

type HistoryResponse struct {
	Messages []models.Message `json:"messages"`
}

type UnreadResponse struct {
	UnreadCount int `json:"unreadCount"`
}

type MembersResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	CommissionerID string          `json:"commissionerId"`
	Members        []models.Member `json:"members"`
}

// History fetches up to limit messages of a league created before the given
// time, or the latest page when before is nil.
func (c *ChatApiClient) History(ctx context.Context, roomID string, limit int, before *time.Time) ([]models.Message, error) {
	query := url.Values{}
	query.Set(LimitParam, strconv.Itoa(limit))
	if before != nil {
		query.Set(BeforeParam, before.UTC().Format(time.RFC3339Nano))
	}
	endpoint := fmt.Sprintf(MessagesEndpoint, url.PathEscape(roomID)) + "?" + query.Encode()

	var response HistoryResponse
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to get history for league %s: %w", roomID, err)
	}

	for i := range response.Messages {
		if response.Messages[i].RoomID == "" {
			response.Messages[i].RoomID = roomID
		}
		response.Messages[i].Reactions = response.Messages[i].Reactions.Normalize()
	}
	return response.Messages, nil
}

// MarkRead marks every message of a league as read for the caller.
func (c *ChatApiClient) MarkRead(ctx context.Context, roomID string) error {
	endpoint := fmt.Sprintf(ReadEndpoint, url.PathEscape(roomID))
	if _, err := c.Post(ctx, endpoint, bytes.NewReader([]byte("{}"))); err != nil {
		return fmt.Errorf("failed to mark league %s read: %w", roomID, err)
	}
	return nil
}

func (c *ChatApiClient) UnreadCount(ctx context.Context, roomID string) (int, error) {
	endpoint := fmt.Sprintf(UnreadEndpoint, url.PathEscape(roomID))

	var response UnreadResponse
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return 0, fmt.Errorf("failed to get unread count for league %s: %w", roomID, err)
	}
	if response.UnreadCount < 0 {
		log.Warn().Str("room_id", roomID).Int("unread_count", response.UnreadCount).Msg("negative unread count from API")
		response.UnreadCount = 0
	}
	return response.UnreadCount, nil
}

// Report flags a message for the league's commissioner.
func (c *ChatApiClient) Report(ctx context.Context, roomID, messageID string) error {
	endpoint := fmt.Sprintf(ReportEndpoint, url.PathEscape(roomID), url.PathEscape(messageID))
	if _, err := c.Post(ctx, endpoint, bytes.NewReader([]byte("{}"))); err != nil {
		return fmt.Errorf("failed to report message %s: %w", messageID, err)
	}
	return nil
}

// Roster fetches the league with its commissioner and ordered member list.
func (c *ChatApiClient) Roster(ctx context.Context, roomID string) (*models.League, error) {
	endpoint := fmt.Sprintf(MembersEndpoint, url.PathEscape(roomID))

	var response MembersResponse
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to get members of league %s: %w", roomID, err)
	}

	league := &models.League{
		ID:             response.ID,
		Name:           response.Name,
		CommissionerID: response.CommissionerID,
		Members:        response.Members,
	}
	if league.ID == "" {
		league.ID = roomID
	}
	return league, nil
}

// getJSON fetches endpoint, rewrites snake_case keys to the canonical schema
// and decodes the result into out.
func (c *ChatApiClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return err
	}

	normalized, err := events.Normalize(body)
	if err != nil {
		return fmt.Errorf("failed to normalize response: %w, raw response: %s", err, string(body))
	}
	if err := json.Unmarshal(normalized, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return nil
}
