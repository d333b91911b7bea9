package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mschirtzinger/taskboard/internal/remote"
	"github.com/mschirtzinger/taskboard/internal/schema"
	"github.com/mschirtzinger/taskboard/internal/store"
)

const sessionKey = "session"

// Error codes returned in the "error" field.
const (
	codeBadRequest       = "bad_request"
	codeUnauthorized     = "unauthorized"
	codeNotFound         = "not_found"
	codeValidation       = "validation_failed"
	codeForeignKey       = "foreign_key_violation"
	codeMethodNotAllowed = "method_not_allowed"
	codeUnsupportedGrant = "unsupported_grant_type"
	codeInternal         = "internal_error"
)

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   code,
		"message": message,
	})
}

// requireSession resolves the bearer token and stores the session in the
// request context.
func (s *Server) requireSession(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		abortWithError(c, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
		return
	}

	sess, err := s.db.LookupSession(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, store.ErrSessionExpired) {
			abortWithError(c, http.StatusUnauthorized, codeUnauthorized, "session expired or invalid")
			return
		}
		s.logger.Printf("Session lookup failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, codeInternal, "session lookup failed")
		return
	}

	c.Set(sessionKey, sess)
	c.Next()
}

func sessionOf(c *gin.Context) *store.Session {
	return c.MustGet(sessionKey).(*store.Session)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

// Auth handlers

func (s *Server) handleSignUp(c *gin.Context) {
	var creds schema.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		abortWithError(c, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	if err := remote.CheckCredentials("signup", creds.Email, creds.Password); err != nil {
		s.writeAuthError(c, err)
		return
	}

	user, err := s.db.CreateUser(c.Request.Context(), creds.Email, creds.Password)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			abortWithError(c, http.StatusConflict, remote.CodeEmailTaken, "User already registered")
			return
		}
		s.writeStoreError(c, err)
		return
	}

	s.issueSession(c, user)
}

func (s *Server) handleToken(c *gin.Context) {
	if grant := c.DefaultQuery("grant_type", "password"); grant != "password" {
		abortWithError(c, http.StatusBadRequest, codeUnsupportedGrant, "only the password grant is supported")
		return
	}

	var creds schema.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		abortWithError(c, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	user, err := s.db.Authenticate(c.Request.Context(), creds.Email, creds.Password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			abortWithError(c, http.StatusBadRequest, remote.CodeInvalidCredentials, "Invalid login credentials")
			return
		}
		s.writeStoreError(c, err)
		return
	}

	s.issueSession(c, user)
}

func (s *Server) issueSession(c *gin.Context, user *store.User) {
	sess, err := s.db.CreateSession(c.Request.Context(), user, s.ttl)
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.db.DeleteSession(c.Request.Context(), sessionOf(c).Token); err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUser(c *gin.Context) {
	sess := sessionOf(c)
	c.JSON(http.StatusOK, gin.H{
		"id":    sess.UserID,
		"email": sess.Email,
	})
}

// Collection handlers

func (s *Server) collection(c *gin.Context) (schema.Collection, bool) {
	coll, err := schema.ParseCollection(c.Param("collection"))
	if err != nil {
		abortWithError(c, http.StatusNotFound, codeNotFound, err.Error())
		return "", false
	}
	return coll, true
}

func (s *Server) handleSelect(c *gin.Context) {
	coll, ok := s.collection(c)
	if !ok {
		return
	}

	records, err := s.db.Select(c.Request.Context(), sessionOf(c).UserID, coll)
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) handleInsert(c *gin.Context) {
	coll, ok := s.collection(c)
	if !ok {
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}
	rec, err := schema.DecodeRecord(coll, body)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	sess := sessionOf(c)
	stored, err := s.db.Insert(c.Request.Context(), sess.UserID, rec)
	if err != nil {
		s.writeStoreError(c, err)
		return
	}

	s.hub.Publish(sess.UserID, remote.Change{
		Collection: coll,
		Action:     remote.ActionInsert,
		ID:         stored.RecordID(),
	})
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) handleUpdate(c *gin.Context) {
	coll, ok := s.collection(c)
	if !ok {
		return
	}

	var fields schema.Fields
	if err := c.ShouldBindJSON(&fields); err != nil {
		abortWithError(c, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	sess := sessionOf(c)
	id := c.Param("id")
	if err := s.db.Update(c.Request.Context(), sess.UserID, coll, id, fields); err != nil {
		s.writeStoreError(c, err)
		return
	}

	s.hub.Publish(sess.UserID, remote.Change{
		Collection: coll,
		Action:     remote.ActionUpdate,
		ID:         id,
	})
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDelete(c *gin.Context) {
	coll, ok := s.collection(c)
	if !ok {
		return
	}

	sess := sessionOf(c)
	id := c.Param("id")
	if err := s.db.Delete(c.Request.Context(), sess.UserID, coll, id); err != nil {
		s.writeStoreError(c, err)
		return
	}

	s.hub.Publish(sess.UserID, remote.Change{
		Collection: coll,
		Action:     remote.ActionDelete,
		ID:         id,
	})
	c.Status(http.StatusNoContent)
}

// Realtime handler

func (s *Server) handleRealtime(c *gin.Context) {
	token := c.Query("access_token")
	if token == "" {
		abortWithError(c, http.StatusUnauthorized, codeUnauthorized, "missing access_token")
		return
	}

	sess, err := s.db.LookupSession(c.Request.Context(), token)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, codeUnauthorized, "session expired or invalid")
		return
	}

	s.hub.serve(c.Writer, c.Request, sess.UserID)
}

func (s *Server) writeAuthError(c *gin.Context, err error) {
	var aerr *remote.AuthError
	if !errors.As(err, &aerr) {
		s.writeStoreError(c, err)
		return
	}
	abortWithError(c, http.StatusBadRequest, aerr.Code, aerr.Message)
}

// writeStoreError maps store errors onto HTTP statuses.
func (s *Server) writeStoreError(c *gin.Context, err error) {
	var verr *schema.ValidationError
	switch {
	case errors.As(err, &verr):
		abortWithError(c, http.StatusUnprocessableEntity, codeValidation, verr.Error())
	case errors.Is(err, store.ErrNotFound):
		abortWithError(c, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, store.ErrUnknownProject):
		abortWithError(c, http.StatusConflict, codeForeignKey, err.Error())
	case errors.Is(err, store.ErrReadOnly):
		abortWithError(c, http.StatusMethodNotAllowed, codeMethodNotAllowed, err.Error())
	default:
		s.logger.Printf("Request failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
