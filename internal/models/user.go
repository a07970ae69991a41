package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRole string

const (
	UserRoleStudent UserRole = "STUDENT"
	UserRoleTutor   UserRole = "TUTOR"
	UserRoleParent  UserRole = "PARENT"
	UserRoleAdmin   UserRole = "ADMIN"
)

var userRoles = []UserRole{UserRoleStudent, UserRoleTutor, UserRoleParent, UserRoleAdmin}

// ParseUserRole accepts a role name in any case.
func ParseUserRole(raw string) (UserRole, error) {
	role := UserRole(strings.ToUpper(strings.TrimSpace(raw)))
	for _, r := range userRoles {
		if r == role {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

type SubscriptionTier string

const (
	SubscriptionFree    SubscriptionTier = "free"
	SubscriptionPremium SubscriptionTier = "premium"
)

// StudentProfile is the role variant stored only on STUDENT users.
type StudentProfile struct {
	AcademicGoals []string `bson:"academicGoals" json:"academicGoals"`
	ParentEmail   string   `bson:"parentEmail,omitempty" json:"parentEmail,omitempty"`
}

// TutorProfile is the role variant stored only on TUTOR users.
type TutorProfile struct {
	Subjects       []string `bson:"subjects" json:"subjects"`
	Qualifications []string `bson:"qualifications" json:"qualifications"`
}

// User field names as stored in the users collection.
const (
	FieldID                       = "_id"
	FieldEmail                    = "email"
	FieldPassword                 = "password"
	FieldRole                     = "role"
	FieldIsVerified               = "isVerified"
	FieldVerificationToken        = "verificationToken"
	FieldVerificationTokenExpires = "verificationTokenExpires"
	FieldResetPasswordToken       = "resetPasswordToken"
	FieldResetPasswordExpires     = "resetPasswordExpires"
	FieldSubscriptionTier         = "subscriptionTier"
	FieldStreak                   = "streak"
	FieldTotalPoints              = "totalPoints"
	FieldLastLoginAt              = "lastLoginAt"
	FieldAvatarURL                = "avatarUrl"
	FieldCreatedAt                = "createdAt"
	FieldUpdatedAt                = "updatedAt"
)

// UsersCollection is the collection identities are stored in.
const UsersCollection = "users"

// SecretFields are excluded from every default read.
var SecretFields = []string{
	FieldPassword,
	FieldVerificationToken,
	FieldVerificationTokenExpires,
	FieldResetPasswordToken,
	FieldResetPasswordExpires,
}

type User struct {
	ID                       primitive.ObjectID `bson:"_id,omitempty"`
	Email                    string             `bson:"email"`
	PasswordHash             string             `bson:"password,omitempty"`
	FirstName                string             `bson:"firstName"`
	LastName                 string             `bson:"lastName"`
	Role                     UserRole           `bson:"role"`
	DateOfBirth              *time.Time         `bson:"dateOfBirth,omitempty"`
	IsVerified               bool               `bson:"isVerified"`
	VerificationToken        string             `bson:"verificationToken,omitempty"`
	VerificationTokenExpires *time.Time         `bson:"verificationTokenExpires,omitempty"`
	ResetPasswordToken       string             `bson:"resetPasswordToken,omitempty"`
	ResetPasswordExpires     *time.Time         `bson:"resetPasswordExpires,omitempty"`
	SubscriptionTier         SubscriptionTier   `bson:"subscriptionTier"`
	Student                  *StudentProfile    `bson:"student,omitempty"`
	Tutor                    *TutorProfile      `bson:"tutor,omitempty"`
	Streak                   int64              `bson:"streak"`
	TotalPoints              int64              `bson:"totalPoints"`
	AvatarURL                string             `bson:"avatarUrl,omitempty"`
	LastLoginAt              *time.Time         `bson:"lastLoginAt,omitempty"`
	CreatedAt                time.Time          `bson:"createdAt"`
	UpdatedAt                time.Time          `bson:"updatedAt"`
}

type NewUserInput struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         UserRole
	DateOfBirth  *time.Time
	ParentEmail  string
}

var ErrRoleProfileMismatch = errors.New("role profile does not match user role")

// NewUser builds an unverified user carrying exactly the role variant its
// role allows, with role-specific lists initialised empty.
func NewUser(in NewUserInput, now time.Time) User {
	user := User{
		Email:            NormalizeEmail(in.Email),
		PasswordHash:     in.PasswordHash,
		FirstName:        strings.TrimSpace(in.FirstName),
		LastName:         strings.TrimSpace(in.LastName),
		Role:             in.Role,
		DateOfBirth:      in.DateOfBirth,
		SubscriptionTier: SubscriptionFree,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	switch in.Role {
	case UserRoleStudent:
		user.Student = &StudentProfile{
			AcademicGoals: []string{},
			ParentEmail:   NormalizeEmail(in.ParentEmail),
		}
	case UserRoleTutor:
		user.Tutor = &TutorProfile{
			Subjects:       []string{},
			Qualifications: []string{},
		}
	}
	return user
}

// Validate rejects users whose role variant does not match their role.
func (u User) Validate() error {
	if _, err := ParseUserRole(string(u.Role)); err != nil {
		return err
	}
	switch u.Role {
	case UserRoleStudent:
		if u.Student == nil || u.Tutor != nil {
			return ErrRoleProfileMismatch
		}
	case UserRoleTutor:
		if u.Tutor == nil || u.Student != nil {
			return ErrRoleProfileMismatch
		}
	default:
		if u.Student != nil || u.Tutor != nil {
			return ErrRoleProfileMismatch
		}
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AgeInYears counts whole years by birth year only.
func AgeInYears(dob time.Time, now time.Time) int {
	return now.Year() - dob.Year()
}

// PublicUser is the projection returned to clients; it never carries the
// password hash or any token.
type PublicUser struct {
	ID               string           `json:"id"`
	Email            string           `json:"email"`
	FirstName        string           `json:"firstName"`
	LastName         string           `json:"lastName"`
	Role             UserRole         `json:"role"`
	DateOfBirth      *time.Time       `json:"dateOfBirth,omitempty"`
	IsVerified       bool             `json:"isVerified"`
	SubscriptionTier SubscriptionTier `json:"subscriptionTier"`
	Student          *StudentProfile  `json:"student,omitempty"`
	Tutor            *TutorProfile    `json:"tutor,omitempty"`
	Streak           int64            `json:"streak"`
	TotalPoints      int64            `json:"totalPoints"`
	AvatarURL        string           `json:"avatarUrl,omitempty"`
	LastLoginAt      *time.Time       `json:"lastLoginAt,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:               u.ID.Hex(),
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Role:             u.Role,
		DateOfBirth:      u.DateOfBirth,
		IsVerified:       u.IsVerified,
		SubscriptionTier: u.SubscriptionTier,
		Student:          u.Student,
		Tutor:            u.Tutor,
		Streak:           u.Streak,
		TotalPoints:      u.TotalPoints,
		AvatarURL:        u.AvatarURL,
		LastLoginAt:      u.LastLoginAt,
		CreatedAt:        u.CreatedAt,
	}
}
