package auth

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Authenticate for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidToken is returned when a token fails signature, expiry or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// Claims represents JWT claims
type Claims struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
	Role Role   `json:"role"`
	jwt.RegisteredClaims
}

// User is an account in the login directory
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	PasswordHash []byte `json:"-"`
}

// Directory is an in-memory account store keyed by email.
type Directory struct {
	users map[string]User
}

// Account pairs a user with a plaintext password for directory seeding.
type Account struct {
	User     User
	Password string
}

// NewDirectory hashes each password with bcrypt and indexes the accounts.
func NewDirectory(accounts []Account) (*Directory, error) {
	d := &Directory{users: make(map[string]User, len(accounts))}
	for _, a := range accounts {
		u := a.User
		if !IsValidRole(string(u.Role)) {
			return nil, fmt.Errorf("user %s has unknown role %q", u.Email, u.Role)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password for %s: %w", u.Email, err)
		}
		u.PasswordHash = hash
		d.users[strings.ToLower(u.Email)] = u
	}
	return d, nil
}

// DemoDirectory returns the three demo accounts, all sharing password.
func DemoDirectory(password string) (*Directory, error) {
	return NewDirectory([]Account{
		{User: User{ID: "1", Email: "admin@pertamina.com", Name: "Admin Pertamina", Role: RoleAdmin}, Password: password},
		{User: User{ID: "2", Email: "budi.santoso@pertamina.com", Name: "Budi Santoso", Role: RoleResponsible}, Password: password},
		{User: User{ID: "3", Email: "sari.wulandari@pertamina.com", Name: "Sari Wulandari", Role: RoleWorker}, Password: password},
	})
}

// Authenticate validates credentials and returns user
func (d *Directory) Authenticate(email, password string) (*User, error) {
	user, exists := d.users[strings.ToLower(strings.TrimSpace(email))]
	if !exists {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// Users lists accounts ordered by id.
func (d *Directory) Users() []User {
	out := make([]User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateToken creates a JWT token for a user
func (ti *TokenIssuer) GenerateToken(user User) (string, error) {
	now := ti.now()
	claims := Claims{
		Sub:  user.ID,
		Name: user.Name,
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ti.secret)
}

// ValidateToken validates and parses a JWT token
func (ti *TokenIssuer) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.secret, nil
	}, jwt.WithTimeFunc(ti.now))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if !IsValidRole(string(claims.Role)) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
		}
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// ExtractTokenFromHeader extracts token from Authorization header
func ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
