// Package interaction keeps the per-image like and comment state a signed-in
// member sees, and performs the remote writes that change it.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gallery/internal/events"
	"gallery/internal/middleware"
	"gallery/internal/models"
	"gallery/internal/observability"

	"gorm.io/gorm"
)

// MaxCommentRunes bounds the stored length of one comment.
const MaxCommentRunes = 10000

// DefaultMaxImages bounds how many images one Store keeps state for.
const DefaultMaxImages = 256

// ErrEmptyContent is returned by AddComment for blank input.
var ErrEmptyContent = errors.New("comment content is empty")

// Likes is the like persistence the store needs.
type Likes interface {
	Find(ctx context.Context, imageID, userID string) (*models.Like, error)
	// Create and Delete return the image's like count as committed.
	Create(ctx context.Context, like *models.Like) (int, error)
	Delete(ctx context.Context, id string) (int, error)
	LikeCount(ctx context.Context, imageID string) (int, error)
	ListByImage(ctx context.Context, imageID string) ([]*models.Like, error)
}

// Comments is the comment persistence the store needs.
type Comments interface {
	Create(ctx context.Context, comment *models.Comment) error
	Delete(ctx context.Context, id, requesterID string) error
	ListByImage(ctx context.Context, imageID string) ([]*models.Comment, error)
}

// LoadState tracks whether an image's comments have been fetched.
type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Loaded
)

func (s LoadState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// LikeResult is the outcome of a like operation. Callers replace their view of
// the image's like state with it wholesale.
type LikeResult struct {
	ImageID   string `json:"image_id"`
	Liked     bool   `json:"liked"`
	LikeCount int    `json:"like_count"`
}

// Error wraps a failed remote call with the operation that made it.
type Error struct {
	Op      string
	ImageID string
	Err     error
}

func (e *Error) Error() string {
	if e.ImageID != "" {
		return fmt.Sprintf("interaction %s on image %s: %v", e.Op, e.ImageID, e.Err)
	}
	return fmt.Sprintf("interaction %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type imageState struct {
	comments  []*models.Comment
	load      LoadState
	fetchSeq  uint64
	likers    map[string]struct{}
	likeCount int
	touched   time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher sends an event after every successful mutation.
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithLogger sets the logger for failed operations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMaxImages caps the images held; the least recently used is dropped
// first. n <= 0 keeps DefaultMaxImages.
func WithMaxImages(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxImages = n
		}
	}
}

// WithClock replaces time.Now for recency bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store holds local interaction state for the images a member has open.
// The mutex guards local state only; it is never held across a remote call,
// so concurrent toggles race at the backend, whose unique index decides.
type Store struct {
	likes     Likes
	comments  Comments
	publisher events.Publisher
	logger    *slog.Logger
	maxImages int
	now       func() time.Time

	mu     sync.RWMutex
	images map[string]*imageState
}

// New creates an empty Store.
func New(likes Likes, comments Comments, opts ...Option) *Store {
	s := &Store{
		likes:     likes,
		comments:  comments,
		logger:    middleware.Logger,
		maxImages: DefaultMaxImages,
		now:       time.Now,
		images:    make(map[string]*imageState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// state returns the image's state, creating it and evicting the least
// recently used image when full. Caller holds mu.
func (s *Store) state(imageID string) *imageState {
	now := s.now()
	st, ok := s.images[imageID]
	if !ok {
		if len(s.images) >= s.maxImages {
			s.evictOldest()
		}
		st = &imageState{likers: make(map[string]struct{})}
		s.images[imageID] = st
	}
	st.touched = now
	return st
}

func (s *Store) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, st := range s.images {
		// A fetch in flight still owns its entry.
		if st.load == Loading {
			continue
		}
		if oldestID == "" || st.touched.Before(oldest) {
			oldestID, oldest = id, st.touched
		}
	}
	if oldestID != "" {
		delete(s.images, oldestID)
	}
}

// Len is the number of images with local state.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

// Open refreshes local state from a freshly fetched image row. The row's
// like count replaces the local one; comments and likers are kept.
func (s *Store) Open(img *models.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(img.ID).likeCount = img.LikeCount
}

// ToggleLike removes the user's like if present, otherwise adds one.
// Local state changes only after the backend accepts the write.
func (s *Store) ToggleLike(ctx context.Context, imageID, userID string) (LikeResult, error) {
	res, err := s.toggleLike(ctx, imageID, userID)
	observability.ObserveInteraction("like", err)
	if err != nil {
		s.fail(ctx, "like", imageID, err)
		return LikeResult{}, &Error{Op: "like", ImageID: imageID, Err: err}
	}

	typ := events.TypeImageUnliked
	if res.Liked {
		typ = events.TypeImageLiked
	}
	count := res.LikeCount
	events.Emit(ctx, s.publisher, events.Event{
		Type: typ, ImageID: imageID, UserID: userID, LikeCount: &count, OccurredAt: time.Now().UTC(),
	})
	return res, nil
}

func (s *Store) toggleLike(ctx context.Context, imageID, userID string) (LikeResult, error) {
	existing, err := s.likes.Find(ctx, imageID, userID)
	switch {
	case err == nil:
		count, err := s.likes.Delete(ctx, existing.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Removed concurrently; read what that delete committed.
			count, err = s.likes.LikeCount(ctx, imageID)
		}
		if err != nil {
			return LikeResult{}, err
		}
		return s.applyLike(imageID, userID, false, count), nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		count, err := s.likes.Create(ctx, &models.Like{ImageID: imageID, UserID: userID})
		if errors.Is(err, models.ErrConflict) {
			count, err = s.likes.LikeCount(ctx, imageID)
		}
		if err != nil {
			return LikeResult{}, err
		}
		return s.applyLike(imageID, userID, true, count), nil
	default:
		return LikeResult{}, err
	}
}

// applyLike records the backend's committed count; local arithmetic never
// feeds the result.
func (s *Store) applyLike(imageID, userID string, liked bool, count int) LikeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(imageID)
	if liked {
		st.likers[userID] = struct{}{}
	} else {
		delete(st.likers, userID)
	}
	st.likeCount = max(count, 0)
	return LikeResult{ImageID: imageID, Liked: liked, LikeCount: st.likeCount}
}

// CheckUserLike reports whether the user has liked the image. It never writes.
func (s *Store) CheckUserLike(ctx context.Context, imageID, userID string) (bool, error) {
	_, err := s.likes.Find(ctx, imageID, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		s.fail(ctx, "check", imageID, err)
		return false, &Error{Op: "check", ImageID: imageID, Err: err}
	}
}

// FetchLikes replaces the image's liker set and count with the backend's rows.
func (s *Store) FetchLikes(ctx context.Context, imageID string) error {
	likes, err := s.likes.ListByImage(ctx, imageID)
	if err != nil {
		s.fail(ctx, "fetch_likes", imageID, err)
		return &Error{Op: "fetch", ImageID: imageID, Err: err}
	}

	likers := make(map[string]struct{}, len(likes))
	for _, l := range likes {
		likers[l.UserID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(imageID)
	st.likers = likers
	st.likeCount = len(likes)
	return nil
}

// AddComment validates and stores a comment, then appends it to the image's list.
func (s *Store) AddComment(ctx context.Context, imageID, content, userID string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxCommentRunes {
		return nil, models.NewValidationError(fmt.Sprintf("Comment must be at most %d characters", MaxCommentRunes))
	}

	comment := &models.Comment{ImageID: imageID, UserID: userID, Content: content}
	err := s.comments.Create(ctx, comment)
	observability.ObserveInteraction("comment", err)
	if err != nil {
		s.fail(ctx, "comment", imageID, err)
		return nil, &Error{Op: "comment", ImageID: imageID, Err: err}
	}

	s.mu.Lock()
	st := s.state(imageID)
	st.comments = append(st.comments, comment)
	s.mu.Unlock()

	events.Emit(ctx, s.publisher, events.Event{
		Type: events.TypeCommentAdded, ImageID: imageID, UserID: userID, CommentID: comment.ID, OccurredAt: time.Now().UTC(),
	})
	return comment, nil
}

// DeleteComment deletes a comment the requester owns and drops it from every
// open image.
func (s *Store) DeleteComment(ctx context.Context, commentID, requesterID string) error {
	err := s.comments.Delete(ctx, commentID, requesterID)
	observability.ObserveInteraction("delete", err)
	if err != nil {
		s.fail(ctx, "delete", "", err)
		return &Error{Op: "delete", Err: err}
	}

	var imageID string
	s.mu.Lock()
	for id, st := range s.images {
		for i, c := range st.comments {
			if c.ID == commentID {
				st.comments = append(st.comments[:i:i], st.comments[i+1:]...)
				imageID = id
				break
			}
		}
	}
	s.mu.Unlock()

	events.Emit(ctx, s.publisher, events.Event{
		Type: events.TypeCommentDeleted, ImageID: imageID, UserID: requesterID, CommentID: commentID, OccurredAt: time.Now().UTC(),
	})
	return nil
}

// FetchComments replaces the image's comments with the backend's list. If a
// newer fetch for the same image starts before this one returns, this
// result is dropped.
func (s *Store) FetchComments(ctx context.Context, imageID string) error {
	s.mu.Lock()
	st := s.state(imageID)
	st.fetchSeq++
	seq := st.fetchSeq
	prev := st.load
	if prev == Loading {
		prev = Unloaded
	}
	st.load = Loading
	s.mu.Unlock()

	comments, err := s.comments.ListByImage(ctx, imageID)

	s.mu.Lock()
	defer s.mu.Unlock()
	st = s.state(imageID)
	if st.fetchSeq != seq {
		return nil
	}
	if err != nil {
		st.load = prev
		s.fail(ctx, "fetch", imageID, err)
		return &Error{Op: "fetch", ImageID: imageID, Err: err}
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	st.comments = comments
	st.load = Loaded
	return nil
}

// ApplyRemote folds an event raised by another session into local state.
// Only images already open are touched. Like events carry the committed
// count and replace the local one. A comment this store has not seen marks
// a loaded list stale so the next FetchComments reloads it.
func (s *Store) ApplyRemote(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.images[e.ImageID]
	if !ok {
		return
	}
	switch e.Type {
	case events.TypeImageLiked, events.TypeImageUnliked:
		if e.LikeCount != nil {
			st.likeCount = max(*e.LikeCount, 0)
		}
	case events.TypeCommentAdded:
		for _, c := range st.comments {
			if c.ID == e.CommentID {
				return
			}
		}
		if st.load == Loaded {
			st.load = Unloaded
		}
	case events.TypeCommentDeleted:
		for i, c := range st.comments {
			if c.ID == e.CommentID {
				st.comments = append(st.comments[:i:i], st.comments[i+1:]...)
				break
			}
		}
	}
}

// Comments returns a copy of the image's local comment list.
func (s *Store) Comments(imageID string) []*models.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.images[imageID]
	if !ok {
		return nil
	}
	return append([]*models.Comment(nil), st.comments...)
}

// CommentState reports where the image's comment list is in its load cycle.
func (s *Store) CommentState(imageID string) LoadState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.images[imageID]; ok {
		return st.load
	}
	return Unloaded
}

// Like is the local view of the image's like state for userID.
func (s *Store) Like(imageID, userID string) LikeResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := LikeResult{ImageID: imageID}
	if st, ok := s.images[imageID]; ok {
		_, res.Liked = st.likers[userID]
		res.LikeCount = st.likeCount
	}
	return res
}

func (s *Store) fail(ctx context.Context, op, imageID string, err error) {
	s.logger.WarnContext(ctx, "interaction failed",
		slog.String("op", op),
		slog.String("image_id", imageID),
		slog.String("error", err.Error()),
	)
}
