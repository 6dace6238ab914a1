package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sorobuild/rpc-gateway/internal/api"
	"github.com/sorobuild/rpc-gateway/internal/apierror"
	"github.com/sorobuild/rpc-gateway/internal/keycodec"
	"github.com/sorobuild/rpc-gateway/internal/logging"
	"github.com/sorobuild/rpc-gateway/internal/store"
)

func projectResponse(project store.Project) api.ProjectResponse {
	return api.ProjectResponse{
		ID:                project.ID,
		AccountID:         project.AccountID,
		Name:              project.Name,
		WhitelistedDomain: project.WhitelistedDomain,
		DevMode:           project.DevMode,
		CreatedAt:         project.CreatedAt,
		UpdatedAt:         project.UpdatedAt,
	}
}

// projectKey issues the API key clients put on proxy requests.
func (s *Server) projectKey(project store.Project) (string, error) {
	return s.codec.Encode(keycodec.CompositeKey{
		AccountID: project.AccountID,
		Epoch:     project.Epoch,
		ProjectID: project.ID,
	})
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		return apierror.NotFound("account not found")
	case errors.Is(err, store.ErrProjectNotFound):
		return apierror.NotFound("project not found")
	case errors.Is(err, store.ErrProjectLimitReached):
		return apierror.Forbidden("project limit reached")
	default:
		return err
	}
}

// POST /projects/:accountId
func (s *Server) handleCreateProject(c *gin.Context) {
	var req api.ProjectCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierror.BadRequest("invalid request body"))
		return
	}
	if req.Name == "" {
		fail(c, apierror.BadRequest("project name is required"))
		return
	}

	ctx := c.Request.Context()
	project, err := s.db.CreateProject(ctx, store.Project{
		ID:                uuid.NewString(),
		AccountID:         c.Param("accountId"),
		Name:              req.Name,
		WhitelistedDomain: req.WhitelistedDomain,
		DevMode:           req.DevMode,
	})
	if err != nil {
		fail(c, mapStoreError(err))
		return
	}

	key, err := s.projectKey(project)
	if err != nil {
		fail(c, err)
		return
	}

	logging.For(ctx, s.logger).Info("project created",
		zap.String("project_id", project.ID),
		zap.String("account_id", project.AccountID),
		zap.String("key", api.ObfuscateKey(key)),
	)

	resp := projectResponse(project)
	resp.Key = key
	c.JSON(http.StatusCreated, resp)
}

// GET /projects/:accountId
func (s *Server) handleListProjects(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := c.Param("accountId")

	if _, err := s.db.GetAccountByID(ctx, accountID); err != nil {
		fail(c, mapStoreError(err))
		return
	}

	projects, err := s.db.ListProjectsByAccount(ctx, accountID)
	if err != nil {
		fail(c, err)
		return
	}

	resp := make([]api.ProjectResponse, len(projects))
	for i, project := range projects {
		resp[i] = projectResponse(project)
	}
	c.JSON(http.StatusOK, resp)
}

// GET /projects/:accountId/:projectId
func (s *Server) handleGetProject(c *gin.Context) {
	project, err := s.ownedProject(c)
	if err != nil {
		fail(c, err)
		return
	}

	key, err := s.projectKey(project)
	if err != nil {
		fail(c, err)
		return
	}

	resp := projectResponse(project)
	resp.Key = key
	c.JSON(http.StatusOK, resp)
}

// PUT /projects/:accountId/:projectId
func (s *Server) handleUpdateProject(c *gin.Context) {
	var req api.ProjectUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierror.BadRequest("invalid request body"))
		return
	}

	project, err := s.ownedProject(c)
	if err != nil {
		fail(c, err)
		return
	}

	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.WhitelistedDomain != nil {
		project.WhitelistedDomain = *req.WhitelistedDomain
	}
	if req.DevMode != nil {
		project.DevMode = *req.DevMode
	}

	ctx := c.Request.Context()
	if err := s.db.UpdateProject(ctx, project); err != nil {
		fail(c, mapStoreError(err))
		return
	}

	updated, err := s.db.GetProjectByID(ctx, project.ID)
	if err != nil {
		fail(c, mapStoreError(err))
		return
	}
	c.JSON(http.StatusOK, projectResponse(updated))
}

// DELETE /projects/:accountId/:projectId
func (s *Server) handleDeleteProject(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := c.Param("accountId")
	projectID := c.Param("projectId")

	if err := s.db.DeleteProject(ctx, accountID, projectID); err != nil {
		fail(c, mapStoreError(err))
		return
	}

	logging.For(ctx, s.logger).Info("project deleted",
		zap.String("project_id", projectID),
		zap.String("account_id", accountID),
	)
	c.Status(http.StatusNoContent)
}

// ownedProject loads :projectId and checks it belongs to :accountId.
func (s *Server) ownedProject(c *gin.Context) (store.Project, error) {
	project, err := s.db.GetProjectByID(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		return store.Project{}, mapStoreError(err)
	}
	if project.AccountID != c.Param("accountId") {
		return store.Project{}, apierror.Forbidden("project does not belong to account")
	}
	return project, nil
}

// GET /rpc-credits/:accountId
func (s *Server) handleGetCredits(c *gin.Context) {
	accountID := c.Param("accountId")
	credits, err := s.db.GetCredits(c.Request.Context(), accountID)
	if err != nil {
		fail(c, mapStoreError(err))
		return
	}
	c.JSON(http.StatusOK, api.CreditsResponse{AccountID: accountID, RPCCredits: credits})
}

// PUT /rpc-credits/:accountId
func (s *Server) handleAddCredits(c *gin.Context) {
	var req api.CreditTopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierror.BadRequest("invalid request body"))
		return
	}
	if req.Amount <= 0 {
		fail(c, apierror.BadRequest("amount must be positive"))
		return
	}

	accountID := c.Param("accountId")
	balance, err := s.db.AddCredits(c.Request.Context(), accountID, req.Amount)
	if err != nil {
		fail(c, mapStoreError(err))
		return
	}

	c.JSON(http.StatusOK, api.CreditsResponse{AccountID: accountID, RPCCredits: balance})
}
