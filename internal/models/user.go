package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user roles in the marketplace
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleClient        Role = "client"
	RoleVehicleOwner  Role = "vehicle_owner"
	RoleBusinessOwner Role = "business_owner"
)

// User represents a user in the system
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	Role         Role               `bson:"role" json:"role"`
	FirstName    string             `bson:"first_name" json:"first_name"`
	LastName     string             `bson:"last_name" json:"last_name"`
	Phone        string             `bson:"phone,omitempty" json:"phone,omitempty"`
	BusinessName string             `bson:"business_name,omitempty" json:"business_name,omitempty"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
	LastLogin    *time.Time         `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone"`
	BusinessName string `json:"business_name"`
	Role         Role   `json:"role"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// Permission names checked by the middleware.
const (
	PermissionAddVehicle    = "add_vehicle"
	PermissionViewVehicles  = "view_vehicles"
	PermissionBookVehicle   = "book_vehicle"
	PermissionViewAgreement = "view_agreement"
	PermissionManageUsers   = "manage_users"
)

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleClient, RoleVehicleOwner, RoleBusinessOwner:
		return true
	default:
		return false
	}
}

// IsSelfRegistrable reports whether a role may be picked on the public sign-up form.
func IsSelfRegistrable(role Role) bool {
	return role == RoleClient || role == RoleVehicleOwner || role == RoleBusinessOwner
}

// HasPermission checks if a user has permission for a specific action
func (u *User) HasPermission(action string) bool {
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleVehicleOwner, RoleBusinessOwner:
		return action == PermissionAddVehicle || action == PermissionViewVehicles ||
			action == PermissionViewAgreement || action == PermissionBookVehicle
	case RoleClient:
		return action == PermissionViewVehicles || action == PermissionBookVehicle ||
			action == PermissionViewAgreement
	default:
		return false
	}
}
