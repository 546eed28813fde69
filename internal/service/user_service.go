package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rs/zerolog"

	"wiselib/api/internal/config"
	"wiselib/api/internal/media/avatar"
	"wiselib/api/internal/models"
	"wiselib/api/internal/repository"
	"wiselib/api/internal/storage"
)

var ErrNoAvatar = errors.New("no profile picture")

type UserService struct {
	users     userStore
	objects   objectStore
	bucket    string
	directory directory
	activity  *ActivityService
	log       zerolog.Logger
}

func NewUserService(users userStore, objects objectStore, dir directory, activity *ActivityService, cfg *config.AppConfig, log zerolog.Logger) *UserService {
	return &UserService{
		users:     users,
		objects:   objects,
		bucket:    cfg.Storage.BucketAvatars,
		directory: dir,
		activity:  activity,
		log:       log,
	}
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	return s.users.GetByID(ctx, strings.TrimSpace(id))
}

// ProfileInput carries the editable fields. Nil fields are left unchanged;
// the id and user type never change.
type ProfileInput struct {
	FirstName  *string
	MiddleName *string
	LastName   *string
	Suffix     *string
	Email      *string
	Course     *string
	YearLevel  *string
	Section    *string
	Department *string
	Position   *string
	Phone      *string
	Address    *string
	Gender     *string
	Birthdate  *string
}

func (s *UserService) UpdateProfile(ctx context.Context, id string, input ProfileInput) (models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	oldEmail := user.Email

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&user.FirstName, input.FirstName)
	set(&user.MiddleName, input.MiddleName)
	set(&user.LastName, input.LastName)
	set(&user.Suffix, input.Suffix)
	set(&user.Phone, input.Phone)
	set(&user.Address, input.Address)
	set(&user.Gender, input.Gender)
	set(&user.Birthdate, input.Birthdate)
	if user.Type == models.UserTypeStudent {
		set(&user.Course, input.Course)
		set(&user.YearLevel, input.YearLevel)
		set(&user.Section, input.Section)
	} else {
		set(&user.Department, input.Department)
		set(&user.Position, input.Position)
	}
	if input.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*input.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return models.User{}, fmt.Errorf("%w: invalid email", ErrInvalidInput)
		}
		user.Email = email
	}
	if user.FirstName == "" || user.LastName == "" {
		return models.User{}, fmt.Errorf("%w: first and last name required", ErrInvalidInput)
	}
	user.FullName = models.ComposeFullName(user.FirstName, user.MiddleName, user.LastName, user.Suffix)

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return models.User{}, err
	}

	s.activity.Record(ctx, user.ID, models.ActivityProfileUpdate, "")
	if user.Email != oldEmail {
		s.activity.Record(ctx, user.ID, models.ActivityEmailUpdate, oldEmail+" -> "+user.Email)
	}
	s.sync(ctx, user)
	return user, nil
}

type ListUsersInput struct {
	Type   models.UserType
	Search string
	SortBy string
	Desc   bool
	Limit  int
	Offset int
}

func (s *UserService) List(ctx context.Context, input ListUsersInput) ([]models.User, error) {
	if input.Type != "" && !input.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown user type %q", ErrInvalidInput, input.Type)
	}
	if input.Limit <= 0 || input.Limit > 500 {
		input.Limit = 100
	}
	return s.users.List(ctx, repository.UserFilter{
		Type:   input.Type,
		Search: input.Search,
		SortBy: input.SortBy,
		Desc:   input.Desc,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
}

// SetActive soft deletes or restores an account.
func (s *UserService) SetActive(ctx context.Context, id string, active bool) (models.User, error) {
	if err := s.users.SetActive(ctx, id, active); err != nil {
		return models.User{}, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	s.sync(ctx, user)
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	if user.AvatarKey != "" && s.objects != nil {
		if err := s.objects.Remove(ctx, s.bucket, user.AvatarKey); err != nil {
			s.log.Warn().Err(err).Str("user_id", id).Msg("remove profile picture failed")
		}
	}
	if s.directory != nil {
		if res := s.directory.DeleteUser(ctx, id); res.Attempted && !res.OK {
			s.log.Warn().Str("user_id", id).Str("sync", res.String()).Msg("directory delete failed")
		}
	}
	s.log.Info().Str("user_id", id).Msg("user deleted")
	return nil
}

// UploadAvatar stores the picture as a 256x256 JPEG.
func (s *UserService) UploadAvatar(ctx context.Context, userID string, input UploadInput) (models.User, error) {
	data, _, err := readImage(input)
	if err != nil {
		return models.User{}, err
	}
	jpeg, err := avatar.Normalize(data)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	key := "avatars/" + userID + ".jpg"
	if err := s.objects.Put(ctx, s.bucket, key, jpeg, "image/jpeg"); err != nil {
		return models.User{}, err
	}
	if err := s.users.SetAvatar(ctx, userID, key); err != nil {
		return models.User{}, err
	}
	s.activity.Record(ctx, userID, models.ActivityProfileUpdate, "profile picture")
	return s.users.GetByID(ctx, userID)
}

func (s *UserService) Avatar(ctx context.Context, userID string) (storage.Object, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return storage.Object{}, err
	}
	if user.AvatarKey == "" {
		return storage.Object{}, ErrNoAvatar
	}
	obj, err := s.objects.Get(ctx, s.bucket, user.AvatarKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return storage.Object{}, ErrNoAvatar
	}
	return obj, err
}

func (s *UserService) sync(ctx context.Context, user models.User) {
	if s.directory == nil {
		return
	}
	if res := s.directory.SyncUser(ctx, user); res.Attempted && !res.OK {
		s.log.Warn().Str("user_id", user.ID).Str("sync", res.String()).Msg("directory sync failed")
	}
}
