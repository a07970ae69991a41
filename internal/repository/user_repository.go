package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/models"
)

var ErrEmailTaken = errors.New("email already registered")

// UserRepository is the identity store. Reads hide the password and token
// fields unless a method says otherwise.
type UserRepository struct {
	*Base[models.User]
	now func() time.Time
}

func NewUserRepository(db *mongo.Database, timeout time.Duration) *UserRepository {
	return &UserRepository{
		Base: NewBase[models.User](
			db.Collection(models.UsersCollection),
			WithTimeout(timeout),
			WithHiddenFields(models.SecretFields...),
		),
		now: time.Now,
	}
}

func emailFilter(email string) bson.D {
	return bson.D{{Key: models.FieldEmail, Value: models.NormalizeEmail(email)}}
}

func (r *UserRepository) CreateUser(ctx context.Context, user models.User) (*models.User, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	user.Email = models.NormalizeEmail(user.Email)
	created, err := r.Create(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.FindOne(ctx, emailFilter(email))
}

func (r *UserRepository) FindByEmailWithPassword(ctx context.Context, email string) (*models.User, error) {
	return r.FindOne(ctx, emailFilter(email), QueryOptions{
		IncludeHidden: []string{models.FieldPassword},
	})
}

// FindByEmailWithVerification also returns the verification expiry, which
// the resend cooldown is derived from.
func (r *UserRepository) FindByEmailWithVerification(ctx context.Context, email string) (*models.User, error) {
	return r.FindOne(ctx, emailFilter(email), QueryOptions{
		IncludeHidden: []string{models.FieldVerificationTokenExpires},
	})
}

func (r *UserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.FindByID(ctx, id)
}

func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.Exists(ctx, emailFilter(email))
}

func (r *UserRepository) FindByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	return r.FindOne(ctx, bson.D{
		{Key: models.FieldVerificationToken, Value: token},
		{Key: models.FieldVerificationTokenExpires, Value: bson.D{{Key: "$gt", Value: r.now()}}},
	}, QueryOptions{
		IncludeHidden: []string{models.FieldVerificationToken, models.FieldVerificationTokenExpires},
	})
}

// VerifyUserEmail marks the user verified and clears the verification token
// in one update, but only while token is still the stored, unexpired token.
// A nil result means the token was already consumed or has expired.
func (r *UserRepository) VerifyUserEmail(ctx context.Context, id primitive.ObjectID, token string) (*models.User, error) {
	now := r.now()
	return r.UpdateOne(ctx, bson.D{
		{Key: models.FieldID, Value: id},
		{Key: models.FieldVerificationToken, Value: token},
		{Key: models.FieldVerificationTokenExpires, Value: bson.D{{Key: "$gt", Value: now}}},
	}, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: models.FieldIsVerified, Value: true},
			{Key: models.FieldUpdatedAt, Value: now},
		}},
		{Key: "$unset", Value: bson.D{
			{Key: models.FieldVerificationToken, Value: ""},
			{Key: models.FieldVerificationTokenExpires, Value: ""},
		}},
	})
}

func (r *UserRepository) UpdateVerificationToken(ctx context.Context, id primitive.ObjectID, token string, expires time.Time) (*models.User, error) {
	return r.UpdateByID(ctx, id, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: models.FieldVerificationToken, Value: token},
			{Key: models.FieldVerificationTokenExpires, Value: expires},
			{Key: models.FieldUpdatedAt, Value: r.now()},
		}},
	})
}

func (r *UserRepository) FindByResetPasswordToken(ctx context.Context, token string) (*models.User, error) {
	return r.FindOne(ctx, bson.D{
		{Key: models.FieldResetPasswordToken, Value: token},
		{Key: models.FieldResetPasswordExpires, Value: bson.D{{Key: "$gt", Value: r.now()}}},
	}, QueryOptions{
		IncludeHidden: []string{models.FieldResetPasswordToken, models.FieldResetPasswordExpires},
	})
}

func (r *UserRepository) UpdateResetPasswordToken(ctx context.Context, id primitive.ObjectID, token string, expires time.Time) (*models.User, error) {
	return r.UpdateByID(ctx, id, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: models.FieldResetPasswordToken, Value: token},
			{Key: models.FieldResetPasswordExpires, Value: expires},
			{Key: models.FieldUpdatedAt, Value: r.now()},
		}},
	})
}

// ResetPassword stores the new hash and clears the reset token in one
// update, conditional on token still being the stored, unexpired token.
func (r *UserRepository) ResetPassword(ctx context.Context, id primitive.ObjectID, token string, passwordHash string) (*models.User, error) {
	now := r.now()
	return r.UpdateOne(ctx, bson.D{
		{Key: models.FieldID, Value: id},
		{Key: models.FieldResetPasswordToken, Value: token},
		{Key: models.FieldResetPasswordExpires, Value: bson.D{{Key: "$gt", Value: now}}},
	}, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: models.FieldPassword, Value: passwordHash},
			{Key: models.FieldUpdatedAt, Value: now},
		}},
		{Key: "$unset", Value: bson.D{
			{Key: models.FieldResetPasswordToken, Value: ""},
			{Key: models.FieldResetPasswordExpires, Value: ""},
		}},
	})
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.UpdateByID(ctx, id, bson.D{
		{Key: "$set", Value: bson.D{{Key: models.FieldLastLoginAt, Value: r.now()}}},
	})
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, id primitive.ObjectID, url string) (*models.User, error) {
	return r.UpdateByID(ctx, id, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: models.FieldAvatarURL, Value: url},
			{Key: models.FieldUpdatedAt, Value: r.now()},
		}},
	})
}

func roleFilter(role models.UserRole, extra bson.D) bson.D {
	filter := bson.D{{Key: models.FieldRole, Value: role}}
	return append(filter, extra...)
}

func (r *UserRepository) FindByRole(ctx context.Context, role models.UserRole, extra bson.D) ([]models.User, error) {
	return r.Find(ctx, roleFilter(role, extra), QueryOptions{
		Sort: bson.D{{Key: models.FieldCreatedAt, Value: -1}},
	})
}

func (r *UserRepository) PaginateByRole(ctx context.Context, role models.UserRole, opts PageOptions) (Page[models.User], error) {
	filter := bson.D{}
	if role != "" {
		filter = roleFilter(role, nil)
	}
	return r.FindPaginated(ctx, filter, opts)
}

// ClearExpiredTokens unsets verification and reset tokens whose expiry has
// passed. It returns how many users had either token removed.
func (r *UserRepository) ClearExpiredTokens(ctx context.Context) (int64, error) {
	now := r.now()
	verification, err := r.UpdateMany(ctx,
		bson.D{{Key: models.FieldVerificationTokenExpires, Value: bson.D{{Key: "$lte", Value: now}}}},
		bson.D{{Key: "$unset", Value: bson.D{
			{Key: models.FieldVerificationToken, Value: ""},
			{Key: models.FieldVerificationTokenExpires, Value: ""},
		}}},
	)
	if err != nil {
		return 0, err
	}
	reset, err := r.UpdateMany(ctx,
		bson.D{{Key: models.FieldResetPasswordExpires, Value: bson.D{{Key: "$lte", Value: now}}}},
		bson.D{{Key: "$unset", Value: bson.D{
			{Key: models.FieldResetPasswordToken, Value: ""},
			{Key: models.FieldResetPasswordExpires, Value: ""},
		}}},
	)
	if err != nil {
		return verification.ModifiedCount, err
	}
	return verification.ModifiedCount + reset.ModifiedCount, nil
}

type RoleCount struct {
	Role     models.UserRole `json:"role"`
	Total    int64           `json:"total"`
	Verified int64           `json:"verified"`
}

func (r *UserRepository) CountByRole(ctx context.Context) ([]RoleCount, error) {
	rows, err := r.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + models.FieldRole},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "verified", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{"$" + models.FieldIsVerified, 1, 0}},
			}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	})
	if err != nil {
		return nil, err
	}

	counts := make([]RoleCount, 0, len(rows))
	for _, row := range rows {
		role, _ := row["_id"].(string)
		counts = append(counts, RoleCount{
			Role:     models.UserRole(role),
			Total:    toInt64(row["total"]),
			Verified: toInt64(row["verified"]),
		})
	}
	return counts, nil
}

func (r *UserRepository) SubscriptionTiers(ctx context.Context) ([]string, error) {
	values, err := r.Distinct(ctx, models.FieldSubscriptionTier, nil)
	if err != nil {
		return nil, err
	}
	tiers := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			tiers = append(tiers, s)
		}
	}
	return tiers, nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int32:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(t)
	case int:
		return int64(t)
	}
	return 0
}
