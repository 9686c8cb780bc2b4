package gmail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	triagedomain "mailsweep-backend/internal/triage/domain"
	"mailsweep-backend/internal/triage/usecase"
)

// TokenProvider supplies OAuth tokens per mailbox and receives refreshed
// tokens back so they survive restarts.
type TokenProvider interface {
	Token(mailbox string) (accessToken, refreshToken string, err error)
	Update(mailbox string, token *oauth2.Token) error
}

// StaticTokens is a TokenProvider backed by a fixed map, used when tokens
// come from the environment. Refreshed access tokens are kept in memory.
type StaticTokens struct {
	mu     sync.Mutex
	tokens map[string][2]string
}

func NewStaticTokens(tokens map[string][2]string) *StaticTokens {
	copied := make(map[string][2]string, len(tokens))
	for k, v := range tokens {
		copied[k] = v
	}
	return &StaticTokens{tokens: copied}
}

func (p *StaticTokens) Token(mailbox string) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pair, ok := p.tokens[mailbox]
	if !ok {
		return "", "", fmt.Errorf("no credentials for mailbox %s", mailbox)
	}
	return pair[0], pair[1], nil
}

func (p *StaticTokens) Update(mailbox string, token *oauth2.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pair := p.tokens[mailbox]
	p.tokens[mailbox] = [2]string{token.AccessToken, pair[1]}
	return nil
}

// notifyTokenSource wraps an oauth2 token source and pushes refreshed tokens
// back to the provider.
type notifyTokenSource struct {
	src     oauth2.TokenSource
	current *oauth2.Token
	mailbox string
	tokens  TokenProvider
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.tokens.Update(s.mailbox, t); err != nil {
			return nil, fmt.Errorf("persist refreshed token: %w", err)
		}
	}
	return t, nil
}

// Service is the Gmail-backed mailbox adapter. Provider errors are mapped
// onto the triage sentinels so callers can branch on error class without
// knowing about HTTP.
type Service struct {
	clientID     string
	clientSecret string
	tokens       TokenProvider
	topicName    string

	mu      sync.Mutex
	clients map[string]*gmail.Service
}

// NewService creates the adapter. topicName is the fully qualified Pub/Sub
// topic ("projects/<project>/topics/<topic>") watch registrations publish to.
func NewService(clientID, clientSecret, topicName string, tokens TokenProvider) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokens:       tokens,
		topicName:    topicName,
		clients:      make(map[string]*gmail.Service),
	}
}

// client returns (building once) the Gmail client for a mailbox.
func (s *Service) client(ctx context.Context, mailbox string) (*gmail.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if srv, ok := s.clients[mailbox]; ok {
		return srv, nil
	}

	access, refresh, err := s.tokens.Token(mailbox)
	if err != nil {
		return nil, err
	}

	token := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}
	// With a refresh token available, force an early refresh so a stale
	// access token never makes the first call fail.
	if refresh != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}
	source := &notifyTokenSource{
		src:     config.TokenSource(context.Background(), token),
		current: token,
		mailbox: mailbox,
		tokens:  s.tokens,
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(context.Background(), source)))
	if err != nil {
		return nil, fmt.Errorf("create gmail client: %v", err)
	}
	s.clients[mailbox] = srv
	return srv, nil
}

// GetMessage fetches the metadata envelope for a message.
func (s *Service) GetMessage(ctx context.Context, mailbox, id string) (*triagedomain.MessageEnvelope, error) {
	srv, err := s.client(ctx, mailbox)
	if err != nil {
		return nil, err
	}

	msg, err := srv.Users.Messages.Get("me", id).
		Format("metadata").
		MetadataHeaders("Subject", "From", "To", "Date").
		Context(ctx).Do()
	if err != nil {
		return nil, mapErr(err, triagedomain.ErrMessageNotFound)
	}

	env := &triagedomain.MessageEnvelope{
		ID:      msg.Id,
		Snippet: msg.Snippet,
	}
	env.LabelIDs = append(env.LabelIDs, msg.LabelIds...)
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				env.Subject = h.Value
			case "From":
				env.From = h.Value
			case "To":
				env.To = h.Value
			case "Date":
				env.Date = h.Value
			}
		}
	}
	return env, nil
}

// ListHistory returns one page of messages added to the inbox since
// startHistoryID. A start id the provider no longer honors surfaces as
// ErrCheckpointInvalid.
func (s *Service) ListHistory(ctx context.Context, mailbox string, startHistoryID uint64, pageToken string) (*usecase.HistoryPage, error) {
	srv, err := s.client(ctx, mailbox)
	if err != nil {
		return nil, err
	}

	call := srv.Users.History.List("me").
		StartHistoryId(startHistoryID).
		HistoryTypes("messageAdded").
		LabelId("INBOX").
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, mapErr(err, triagedomain.ErrCheckpointInvalid)
	}

	page := &usecase.HistoryPage{
		HistoryID:     resp.HistoryId,
		NextPageToken: resp.NextPageToken,
	}
	seen := make(map[string]struct{})
	for _, h := range resp.History {
		for _, added := range h.MessagesAdded {
			if added.Message == nil {
				continue
			}
			if _, dup := seen[added.Message.Id]; dup {
				continue
			}
			seen[added.Message.Id] = struct{}{}
			page.AddedIDs = append(page.AddedIDs, added.Message.Id)
		}
	}
	return page, nil
}

// ListInbox returns one page of inbox message ids, newest first.
func (s *Service) ListInbox(ctx context.Context, mailbox string, maxResults int64, pageToken string) (*usecase.InboxPage, error) {
	srv, err := s.client(ctx, mailbox)
	if err != nil {
		return nil, err
	}

	if maxResults <= 0 || maxResults > 500 {
		maxResults = 500
	}
	call := srv.Users.Messages.List("me").
		LabelIds("INBOX").
		MaxResults(maxResults).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, mapErr(err, nil)
	}

	page := &usecase.InboxPage{
		NextPageToken: resp.NextPageToken,
		SizeEstimate:  resp.ResultSizeEstimate,
	}
	for _, m := range resp.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

// ModifyLabels adds and removes label ids on a message. Reapplying an
// already-applied change is a no-op on the provider side.
func (s *Service) ModifyLabels(ctx context.Context, mailbox, id string, addLabelIDs, removeLabelIDs []string) error {
	srv, err := s.client(ctx, mailbox)
	if err != nil {
		return err
	}

	_, err = srv.Users.Messages.Modify("me", id, &gmail.ModifyMessageRequest{
		AddLabelIds:    addLabelIDs,
		RemoveLabelIds: removeLabelIDs,
	}).Context(ctx).Do()
	if err != nil {
		return mapErr(err, triagedomain.ErrMessageNotFound)
	}
	return nil
}

// Delete moves a message to trash.
func (s *Service) Delete(ctx context.Context, mailbox, id string) error {
	srv, err := s.client(ctx, mailbox)
	if err != nil {
		return err
	}

	if _, err := srv.Users.Messages.Trash("me", id).Context(ctx).Do(); err != nil {
		return mapErr(err, triagedomain.ErrMessageNotFound)
	}
	return nil
}

// ListLabels returns the mailbox's user labels.
func (s *Service) ListLabels(ctx context.Context, mailbox string) ([]usecase.Label, error) {
	srv, err := s.client(ctx, mailbox)
	if err != nil {
		return nil, err
	}

	resp, err := srv.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, mapErr(err, nil)
	}

	labels := make([]usecase.Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		if l.Type != "user" {
			continue
		}
		labels = append(labels, usecase.Label{ID: l.Id, Name: l.Name})
	}
	return labels, nil
}

// CreateLabel creates a user label.
func (s *Service) CreateLabel(ctx context.Context, mailbox, name string) (usecase.Label, error) {
	srv, err := s.client(ctx, mailbox)
	if err != nil {
		return usecase.Label{}, err
	}

	created, err := srv.Users.Labels.Create("me", &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return usecase.Label{}, mapErr(err, nil)
	}
	return usecase.Label{ID: created.Id, Name: created.Name}, nil
}

// Watch stops any existing watch and registers a new one on the inbox,
// returning the mailbox's current history id and the watch expiration in
// epoch milliseconds.
func (s *Service) Watch(ctx context.Context, mailbox string) (uint64, int64, error) {
	srv, err := s.client(ctx, mailbox)
	if err != nil {
		return 0, 0, err
	}

	// Stop is best effort; a missing watch is not an error worth surfacing.
	if err := srv.Users.Stop("me").Context(ctx).Do(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code >= 500 {
			return 0, 0, mapErr(err, nil)
		}
	}

	resp, err := srv.Users.Watch("me", &gmail.WatchRequest{
		TopicName: s.topicName,
		LabelIds:  []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return 0, 0, mapErr(err, nil)
	}
	return resp.HistoryId, resp.Expiration, nil
}

// mapErr translates googleapi errors onto the triage sentinels. notFound is
// the sentinel a 404 maps to for this call, nil when 404 has no special
// meaning.
func mapErr(err error, notFound error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", triagedomain.ErrTransientAPI, err)
	}
	switch {
	case apiErr.Code == 404 && notFound != nil:
		return fmt.Errorf("%w: %v", notFound, err)
	case apiErr.Code == 401 || apiErr.Code == 403:
		return fmt.Errorf("%w: %v", triagedomain.ErrPermission, err)
	case apiErr.Code == 429 || apiErr.Code >= 500:
		return fmt.Errorf("%w: %v", triagedomain.ErrTransientAPI, err)
	}
	return err
}
