package identity

import (
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/smilehealth/smilehealth/internal/domain/visibility"
	"github.com/smilehealth/smilehealth/internal/platform/auth"
	"github.com/smilehealth/smilehealth/internal/platform/blobstore"
	"github.com/smilehealth/smilehealth/pkg/pagination"
)

type Handler struct {
	service *Service
	jwt     auth.JWTConfig
	avatars blobstore.BlobStore
}

func NewHandler(service *Service, jwt auth.JWTConfig, avatars blobstore.BlobStore) *Handler {
	return &Handler{service: service, jwt: jwt, avatars: avatars}
}

// RegisterPublicRoutes mounts endpoints that do not require a token.
func (h *Handler) RegisterPublicRoutes(g *echo.Group) {
	g.POST("/auth/login", h.Login)
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/me", h.Me)
	g.PUT("/me", h.UpdateMe)
	g.PUT("/me/password", h.ChangePassword)
	g.PUT("/me/avatar", h.UploadAvatar)
	g.POST("/auth/logout", h.Logout)

	admin := g.Group("", auth.RequireAdmin())
	admin.POST("/users", h.CreateUser)
	admin.GET("/users", h.ListUsers)
	admin.GET("/users/:id", h.GetUser)
	admin.DELETE("/users/:id", h.DeleteUser)

	g.GET("/branches", h.ListBranches)
	admin.POST("/branches", h.CreateBranch)
	admin.DELETE("/branches/:id", h.DeleteBranch)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string   `json:"token"`
	User    *User    `json:"user"`
	Profile *Profile `json:"profile"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	user, profile, err := h.service.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInactiveAccount) {
			return echo.NewHTTPError(http.StatusForbidden, ErrInactiveAccount.Error())
		}
		return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidCredentials.Error())
	}
	actor := user.Actor(profile)
	token, err := h.jwt.IssueToken(user.ID, user.Username, string(profile.Role), actor.Admin)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, User: user, Profile: profile})
}

type meResponse struct {
	User    *User    `json:"user"`
	Profile *Profile `json:"profile"`
}

// Logout acknowledges the client discarding its token. Tokens are stateless,
// so there is nothing to revoke server-side.
func (h *Handler) Logout(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Me(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	ctx := c.Request().Context()
	user, err := h.service.GetUser(ctx, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	profile, err := h.service.GetProfile(ctx, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "profile not found")
	}
	return c.JSON(http.StatusOK, meResponse{User: user, Profile: profile})
}

type updateMeRequest struct {
	Email       *string     `json:"email"`
	FirstName   *string     `json:"first_name"`
	LastName    *string     `json:"last_name"`
	Gender      *string     `json:"gender"`
	Description *string     `json:"description"`
	Branches    []uuid.UUID `json:"branches"`
}

func (h *Handler) UpdateMe(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	var req updateMeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	err := h.service.UpdateProfile(c.Request().Context(), userID, UpdateProfileParams{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Gender:      req.Gender,
		Description: req.Description,
		Branches:    req.Branches,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) ChangePassword(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.service.ChangePassword(c.Request().Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusForbidden, "current password does not match")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UploadAvatar(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to open upload")
	}
	defer src.Close()

	dest := path.Join("avatars", fmt.Sprintf("%s%s", userID, path.Ext(file.Filename)))
	stored, _, err := h.avatars.Save(c.Request().Context(), dest, src)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store avatar")
	}
	if err := h.service.SetAvatar(c.Request().Context(), userID, stored); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update profile")
	}
	return c.JSON(http.StatusOK, map[string]string{"avatar": stored})
}

type createUserRequest struct {
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Password  string      `json:"password"`
	Role      string      `json:"role"`
	IsAdmin   bool        `json:"is_admin"`
	Branches  []uuid.UUID `json:"branches"`
}

func (h *Handler) CreateUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	user, err := h.service.CreateUser(c.Request().Context(), CreateUserParams{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
		Role:      visibility.Role(req.Role),
		IsAdmin:   req.IsAdmin,
		Branches:  req.Branches,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, user)
}

func (h *Handler) ListUsers(c echo.Context) error {
	params := pagination.FromContext(c)
	users, total, err := h.service.ListUsers(c.Request().Context(), params.Limit, params.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list users")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, params))
}

func (h *Handler) GetUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	user, err := h.service.GetUser(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) DeleteUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	if err := h.service.DeleteUser(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete user")
	}
	return c.NoContent(http.StatusNoContent)
}

type createBranchRequest struct {
	Name string `json:"name"`
}

func (h *Handler) CreateBranch(c echo.Context) error {
	var req createBranchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	branch, err := h.service.CreateBranch(c.Request().Context(), req.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, branch)
}

func (h *Handler) ListBranches(c echo.Context) error {
	branches, err := h.service.ListBranches(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list branches")
	}
	return c.JSON(http.StatusOK, branches)
}

func (h *Handler) DeleteBranch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid branch id")
	}
	if err := h.service.DeleteBranch(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete branch")
	}
	return c.NoContent(http.StatusNoContent)
}
