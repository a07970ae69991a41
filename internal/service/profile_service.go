package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/apperr"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/media/sniffer"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/media/svg"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/models"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/repository"
)

const (
	MsgUserNotFound       = "User not found"
	MsgAvatarEmpty        = "Avatar file is empty"
	MsgAvatarUnsupported  = "Avatar must be a JPEG, PNG, GIF, WebP or SVG image"
	MsgAvatarTypeMismatch = "Avatar content does not match its declared type"
	MsgAvatarsDisabled    = "Avatar uploads are not enabled"
)

type ProfileStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	UpdateAvatar(ctx context.Context, id primitive.ObjectID, url string) (*models.User, error)
}

type AvatarStore interface {
	PutAvatar(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	RemoveAvatar(ctx context.Context, key string) error
	KeyFromURL(raw string) (string, bool)
}

type ActivityLister interface {
	PaginateByUser(ctx context.Context, userID string, opts repository.PageOptions) (repository.Page[models.Activity], error)
}

type ProfileService struct {
	users         ProfileStore
	avatars       AvatarStore
	activity      ActivityLister
	maxAvatarSize int64
	log           zerolog.Logger
}

func NewProfileService(users ProfileStore, avatars AvatarStore, activity ActivityLister, maxAvatarSize int64, log zerolog.Logger) *ProfileService {
	return &ProfileService{
		users:         users,
		avatars:       avatars,
		activity:      activity,
		maxAvatarSize: maxAvatarSize,
		log:           log,
	}
}

func (s *ProfileService) GetProfile(ctx context.Context, id primitive.ObjectID) (models.PublicUser, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.PublicUser{}, apperr.Internal(err)
	}
	if user == nil {
		return models.PublicUser{}, apperr.NotFound(MsgUserNotFound)
	}
	return user.Public(), nil
}

type AvatarUpload struct {
	User     *models.User
	Body     io.Reader
	Declared http.Header
}

// UploadAvatar stores a new avatar and points the user at it. The type is
// taken from the file's magic bytes; a conflicting declared type is
// rejected and SVG markup is stripped of scripts.
func (s *ProfileService) UploadAvatar(ctx context.Context, in AvatarUpload) (models.PublicUser, error) {
	if s.avatars == nil {
		return models.PublicUser{}, apperr.NotFound(MsgAvatarsDisabled)
	}

	data, err := io.ReadAll(io.LimitReader(in.Body, s.maxAvatarSize+1))
	if err != nil {
		return models.PublicUser{}, apperr.Internal(fmt.Errorf("read avatar: %w", err))
	}
	if len(data) == 0 {
		return models.PublicUser{}, apperr.Validation(MsgAvatarEmpty)
	}
	if int64(len(data)) > s.maxAvatarSize {
		return models.PublicUser{}, apperr.Validation(fmt.Sprintf("Avatar must be at most %d bytes", s.maxAvatarSize))
	}

	detected, err := sniffer.Detect(data)
	if err != nil {
		return models.PublicUser{}, apperr.Validation(MsgAvatarUnsupported)
	}
	declared := sniffer.DeclaredMIME(in.Declared)
	if declared != "" && declared != "application/octet-stream" && declared != detected.MIME {
		return models.PublicUser{}, apperr.Validation(MsgAvatarTypeMismatch)
	}

	if detected.Type == sniffer.TypeSVG {
		clean, err := svg.Sanitize(data)
		if err != nil {
			if errors.Is(err, svg.ErrNotSVG) {
				return models.PublicUser{}, apperr.Validation(MsgAvatarUnsupported)
			}
			return models.PublicUser{}, apperr.Internal(err)
		}
		data = clean
	}

	key := avatarKey(in.User.ID, detected.Extension())
	url, err := s.avatars.PutAvatar(ctx, key, bytes.NewReader(data), int64(len(data)), detected.MIME)
	if err != nil {
		return models.PublicUser{}, apperr.Internal(err)
	}

	updated, err := s.users.UpdateAvatar(ctx, in.User.ID, url)
	if err != nil {
		return models.PublicUser{}, apperr.Internal(err)
	}
	if updated == nil {
		return models.PublicUser{}, apperr.NotFound(MsgUserNotFound)
	}

	if previous, ok := s.avatars.KeyFromURL(in.User.AvatarURL); ok && previous != key {
		if err := s.avatars.RemoveAvatar(ctx, previous); err != nil {
			s.log.Warn().Err(err).Str("user_id", in.User.ID.Hex()).Str("key", previous).Msg("remove previous avatar failed")
		}
	}

	s.log.Info().Str("user_id", in.User.ID.Hex()).Str("key", key).Int("bytes", len(data)).Msg("avatar updated")
	return updated.Public(), nil
}

func avatarKey(userID primitive.ObjectID, ext string) string {
	return fmt.Sprintf("avatars/%s/%s.%s", userID.Hex(), ksuid.New().String(), ext)
}

// ListActivity pages through the caller's ledger, newest first. Without a
// ledger configured it returns an empty page.
func (s *ProfileService) ListActivity(ctx context.Context, userID primitive.ObjectID, opts repository.PageOptions) (repository.Page[models.Activity], error) {
	if s.activity == nil {
		return repository.NewPage[models.Activity](nil, 0, max(opts.Page, 1), max(opts.Limit, 1)), nil
	}
	page, err := s.activity.PaginateByUser(ctx, userID.Hex(), opts)
	if err != nil {
		return repository.Page[models.Activity]{}, apperr.Internal(err)
	}
	return page, nil
}
