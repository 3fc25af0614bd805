package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/goliatone/go-settings/pkg/catalog"
	"github.com/goliatone/go-settings/pkg/guard"
)

type versionRequest struct {
	Version any `json:"version"`
}

type updateStatusRequest struct {
	Version   any     `json:"version"`
	Code      *string `json:"code" validate:"omitempty,max=64"`
	Label     *string `json:"label" validate:"omitempty,max=200"`
	SortOrder *int    `json:"sortOrder"`
}

type createRelationRequest struct {
	ID      string   `json:"id" validate:"required"`
	Members []string `json:"members"`
}

type memberRequest struct {
	Member  string `json:"member" validate:"required"`
	Version any    `json:"version"`
}

type updateTemplateRequest struct {
	Version any     `json:"version"`
	Name    *string `json:"name" validate:"omitempty,max=200"`
	Body    *string `json:"body"`
}

type renderRequest struct {
	Data map[string]any `json:"data"`
}

type renderResponse struct {
	Output string `json:"output"`
}

// versionBody binds a body that must carry version and returns it parsed.
func (s *Server) versionBody(c *gin.Context) (int64, bool) {
	var req versionRequest
	if err := bind(c, &req); err != nil {
		s.invalid(c, err)
		return 0, false
	}
	version, err := guard.ParseVersion(req.Version)
	if err != nil {
		s.fail(c, err)
		return 0, false
	}
	return version, true
}

func (s *Server) listStatuses(c *gin.Context) {
	out, err := s.statuses.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createStatus(c *gin.Context) {
	var req catalog.StatusInput
	if err := bind(c, &req); err != nil {
		s.invalid(c, err)
		return
	}
	status, err := s.statuses.Create(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, status)
}

func (s *Server) updateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := bind(c, &req); err != nil {
		s.invalid(c, err)
		return
	}
	version, err := guard.ParseVersion(req.Version)
	if err != nil {
		s.fail(c, err)
		return
	}
	status, err := s.statuses.Update(c.Request.Context(), c.Param("id"), version, catalog.StatusPatch{
		Code:      req.Code,
		Label:     req.Label,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) toggleStatus(c *gin.Context) {
	version, ok := s.versionBody(c)
	if !ok {
		return
	}
	status, err := s.statuses.ToggleActive(c.Request.Context(), c.Param("id"), version)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) deleteStatus(c *gin.Context) {
	version, ok := s.versionBody(c)
	if !ok {
		return
	}
	if err := s.statuses.Delete(c.Request.Context(), c.Param("id"), version); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) createRelation(c *gin.Context) {
	var req createRelationRequest
	if err := bind(c, &req); err != nil {
		s.invalid(c, err)
		return
	}
	set, err := s.relations.Create(c.Request.Context(), req.ID, req.Members)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, set)
}

func (s *Server) getRelation(c *gin.Context) {
	set, err := s.relations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

func (s *Server) addRelationMember(c *gin.Context) {
	var req memberRequest
	if err := bind(c, &req); err != nil {
		s.invalid(c, err)
		return
	}
	version, err := guard.ParseVersion(req.Version)
	if err != nil {
		s.fail(c, err)
		return
	}
	set, err := s.relations.AddMember(c.Request.Context(), c.Param("id"), version, req.Member)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

func (s *Server) removeRelationMember(c *gin.Context) {
	version, ok := s.versionBody(c)
	if !ok {
		return
	}
	set, err := s.relations.RemoveMember(c.Request.Context(), c.Param("id"), version, c.Param("member"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

func (s *Server) listTemplates(c *gin.Context) {
	out, err := s.templates.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getTemplate(c *gin.Context) {
	tpl, err := s.templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (s *Server) createTemplate(c *gin.Context) {
	var req catalog.TemplateInput
	if err := bind(c, &req); err != nil {
		s.invalid(c, err)
		return
	}
	tpl, err := s.templates.Create(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

func (s *Server) updateTemplate(c *gin.Context) {
	var req updateTemplateRequest
	if err := bind(c, &req); err != nil {
		s.invalid(c, err)
		return
	}
	version, err := guard.ParseVersion(req.Version)
	if err != nil {
		s.fail(c, err)
		return
	}
	tpl, err := s.templates.Update(c.Request.Context(), c.Param("id"), version, catalog.TemplatePatch{
		Name: req.Name,
		Body: req.Body,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (s *Server) deleteTemplate(c *gin.Context) {
	version, ok := s.versionBody(c)
	if !ok {
		return
	}
	if err := s.templates.Delete(c.Request.Context(), c.Param("id"), version); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) renderTemplate(c *gin.Context) {
	var req renderRequest
	if err := bind(c, &req); err != nil {
		s.invalid(c, err)
		return
	}
	out, err := s.templates.Render(c.Request.Context(), c.Param("id"), req.Data)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, renderResponse{Output: out})
}
