package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/guard"
	"github.com/goliatone/go-settings/pkg/state"
)

type putSettingRequest struct {
	Key       string `json:"key" validate:"required"`
	ScopeType string `json:"scopeType" validate:"required"`
	Value     any    `json:"value"`
	Version   any    `json:"version"`
	Create    bool   `json:"create"`
}

type resetSettingRequest struct {
	Key       string `json:"key" validate:"required"`
	ScopeType string `json:"scopeType" validate:"required"`
	Version   any    `json:"version"`
}

func (s *Server) listSettings(c *gin.Context) {
	table, err := s.settings.Table(c.Request.Context(), identityFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (s *Server) putSetting(c *gin.Context) {
	var req putSettingRequest
	if err := bind(c, &req); err != nil {
		s.invalid(c, err)
		return
	}
	scope, err := settings.ParseScopeType(req.ScopeType)
	if err != nil {
		s.fail(c, guard.Validation(state.EntitySetting, req.Key, "%v", err))
		return
	}
	expected, err := guard.CheckVersion(req.Version, req.Create)
	if err != nil {
		s.fail(c, err)
		return
	}
	table, err := s.settings.Write(c.Request.Context(), identityFrom(c), state.WriteRequest{
		Key:      req.Key,
		Scope:    scope,
		Value:    req.Value,
		Expected: expected,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (s *Server) resetSetting(c *gin.Context) {
	var req resetSettingRequest
	if err := bind(c, &req); err != nil {
		s.invalid(c, err)
		return
	}
	scope, err := settings.ParseScopeType(req.ScopeType)
	if err != nil {
		s.fail(c, guard.Validation(state.EntitySetting, req.Key, "%v", err))
		return
	}
	version, err := guard.ParseVersion(req.Version)
	if err != nil {
		s.fail(c, err)
		return
	}
	table, err := s.settings.Reset(c.Request.Context(), identityFrom(c), state.ResetRequest{
		Key:     req.Key,
		Scope:   scope,
		Version: version,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (s *Server) settingsSchema(c *gin.Context) {
	doc, err := s.schema.Generate(s.settings.Catalog().Definitions())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) traceSetting(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		s.fail(c, guard.Validation(state.EntitySetting, "", "key query parameter is required"))
		return
	}
	trace, err := s.settings.Trace(c.Request.Context(), key, identityFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trace)
}
