package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/hsmc/internal/models"
	"github.com/desertthunder/hsmc/internal/services"
	"github.com/desertthunder/hsmc/internal/shared"
	"github.com/desertthunder/hsmc/internal/tasks"
)

// sfmcAuthFailedMessage is returned when request-supplied Marketing Cloud credentials are rejected.
const sfmcAuthFailedMessage = "Failed to authenticate with SFMC using provided credentials."

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// sfmcAuthRequest is the body of POST /api/auth/sfmc.
type sfmcAuthRequest struct {
	UserID string `json:"userId"`
	models.SFMCCredentials
}

type sfmcAuthResponse struct {
	Success     bool      `json:"success"`
	UserID      string    `json:"userId"`
	RestBaseURL string    `json:"restBaseUrl,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// handleSFMCAuth verifies client credentials with a token exchange and stores them for the user.
func (s *Server) handleSFMCAuth(w http.ResponseWriter, r *http.Request) {
	var body sfmcAuthRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !body.SFMCCredentials.Complete() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: clientId, clientSecret and subdomain are required", shared.ErrMissingArgument))
		return
	}

	cred, err := s.opts.Credentials.ExchangeSFMC(r.Context(), body.SFMCCredentials)
	if err != nil {
		s.logger.Warn("sfmc authentication failed", "subdomain", body.Subdomain, "err", err)
		writeError(w, http.StatusBadRequest, errors.New(sfmcAuthFailedMessage))
		return
	}

	if body.UserID == "" {
		body.UserID = shared.GenerateID()
	}
	if s.opts.Store != nil {
		blob, err := json.Marshal(models.SFMCTokenBlob{
			SFMCCredentials: body.SFMCCredentials,
			AccessToken:     cred.AccessToken,
			Expiry:          cred.ExpiresAt,
		})
		if err == nil {
			err = s.opts.Store.Upsert(r.Context(), &models.StoredToken{
				UserID:    body.UserID,
				Platform:  models.PlatformSFMC,
				Token:     blob,
				UpdatedAt: time.Now(),
			})
		}
		if err != nil {
			s.logger.Error("could not store sfmc credentials", "user", body.UserID, "err", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, sfmcAuthResponse{
		Success:     true,
		UserID:      body.UserID,
		RestBaseURL: cred.RestBaseURL,
		ExpiresAt:   cred.ExpiresAt,
	})
}

// handleMigrate runs one orchestrator to completion and answers with its ledger.
func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	assetType, ok := models.ParseAssetType(r.PathValue("type"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: unknown asset type %q", shared.ErrUnsupported, r.PathValue("type")))
		return
	}

	var req models.MigrationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	progress := make(chan tasks.ProgressUpdate, 32)
	drained := make(chan struct{})
	logger := shared.WithLogger(s.logger, "asset", assetType)
	go func() {
		defer close(drained)
		for u := range progress {
			logger.Debug(u.Message, "phase", u.Phase)
		}
	}()

	result, err := s.opts.Engine.Run(r.Context(), assetType, &req, progress)
	close(progress)
	<-drained

	if err != nil {
		var authErr *shared.AuthError
		if errors.As(err, &authErr) && authErr.Platform == string(models.PlatformSFMC) && req.SFMCCredentials.Complete() {
			writeError(w, http.StatusBadRequest, errors.New(sfmcAuthFailedMessage))
			return
		}
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// diagnostics resolves Marketing Cloud credentials for a diagnostics request.
func (s *Server) diagnostics(r *http.Request, req *models.MigrationRequest) (Diagnostics, int, error) {
	creds, fromRequest, err := s.opts.Credentials.SFMCCredentialsFor(r.Context(), req)
	if err != nil {
		return nil, statusFor(err), err
	}
	cred, err := s.opts.Credentials.ExchangeSFMC(r.Context(), creds)
	if err != nil {
		if fromRequest {
			return nil, http.StatusBadRequest, errors.New(sfmcAuthFailedMessage)
		}
		return nil, statusFor(err), err
	}
	return s.opts.NewDiagnostics(cred), 0, nil
}

type foldersRequest struct {
	models.MigrationRequest
	ParentID int64 `json:"parentId,omitempty"`
}

type foldersResponse struct {
	Success bool            `json:"success"`
	Folders []models.Folder `json:"folders"`
}

// handleFolders lists destination folders of kind.
func (s *Server) handleFolders(kind services.FolderKind) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req foldersRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		diag, status, err := s.diagnostics(r, &req.MigrationRequest)
		if err != nil {
			writeError(w, status, err)
			return
		}

		folders, err := diag.ListFolders(r.Context(), kind, req.ParentID)
		if err != nil {
			s.logger.Error("list folders failed", "kind", kind, "err", err)
			writeError(w, http.StatusBadGateway, err)
			return
		}
		if folders == nil {
			folders = []models.Folder{}
		}
		writeJSON(w, http.StatusOK, foldersResponse{Success: true, Folders: folders})
	})
}

type testBlockResponse struct {
	Success bool                     `json:"success"`
	Asset   *models.DestinationAsset `json:"asset"`
}

// handleTestContentBlock writes a throwaway content block to check write access.
func (s *Server) handleTestContentBlock(w http.ResponseWriter, r *http.Request) {
	var req models.MigrationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	diag, status, err := s.diagnostics(r, &req)
	if err != nil {
		writeError(w, status, err)
		return
	}

	asset, err := diag.TestContentBlock(r.Context(), req.FolderID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, testBlockResponse{Success: true, Asset: asset})
}
