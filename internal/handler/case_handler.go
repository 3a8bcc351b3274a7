package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"testcase-management-service/internal/importer"
	"testcase-management-service/internal/repository"
	"testcase-management-service/internal/service"

	"github.com/gin-gonic/gin"
)

// CaseHandler HTTP处理器
type CaseHandler struct {
	service  service.CaseService
	importer *importer.Importer
}

// NewCaseHandler 创建处理器
func NewCaseHandler(service service.CaseService, importer *importer.Importer) *CaseHandler {
	return &CaseHandler{service: service, importer: importer}
}

// RegisterRoutes 注册路由
func (h *CaseHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		// Test cases
		api.POST("/cases", h.CreateCase)
		api.PUT("/cases/:id", h.UpdateCase)
		api.DELETE("/cases/:id", h.DeleteCase)
		api.GET("/cases/:id", h.GetCase)
		api.GET("/cases", h.ListCases)
		api.GET("/cases/tree", h.CategoryTree)

		// Inline partial updates
		api.PUT("/cases/:id/status", h.UpdateStatusResult)
		api.PUT("/cases/:id/notes", h.UpdateNotes)
		api.DELETE("/cases/:id/tags/:name", h.RemoveTag)

		// Bulk operations
		api.POST("/cases/bulk-tag", h.BulkAddTag)
		api.POST("/cases/bulk-delete", h.BulkDelete)

		// Attachments
		api.POST("/cases/:id/attachments", h.UploadAttachment)
		api.DELETE("/attachments/:id", h.DeleteAttachment)

		// Spreadsheet import/export
		api.POST("/import", h.ImportWorkbooks)
		api.GET("/export", h.ExportWorkbook)

		// Global preconditions
		api.GET("/preconditions/:key", h.GetPrecondition)
		api.PUT("/preconditions/:key", h.UpdatePrecondition)
	}
}

// ===== Case Handlers =====

func (h *CaseHandler) CreateCase(c *gin.Context) {
	var req service.CaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tc, err := h.service.CreateCase(&req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, tc)
}

func (h *CaseHandler) UpdateCase(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.CaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tc, err := h.service.UpdateCase(id, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tc)
}

func (h *CaseHandler) DeleteCase(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteCase(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "test case deleted"})
}

func (h *CaseHandler) GetCase(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	tc, err := h.service.GetCase(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "test case not found"})
		return
	}
	c.JSON(http.StatusOK, tc)
}

func (h *CaseHandler) ListCases(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	filter := caseFilter(c)

	cases, total, err := h.service.ListCases(filter, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"data":   cases,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	}
	// 当前选中产品的全局前置条件，供列表页展示
	if filter.ProductType != "" {
		if text := h.service.GlobalPrecondition(filter.ProductType); text != "" {
			resp["globalPrecondition"] = text
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CaseHandler) CategoryTree(c *gin.Context) {
	tree, err := h.service.CategoryTree()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tree)
}

// ===== Partial update handlers =====

func (h *CaseHandler) UpdateStatusResult(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status       string `json:"status" binding:"required"`
		ActualResult string `json:"actualResult"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tc, err := h.service.UpdateStatusResult(id, req.Status, req.ActualResult)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tc)
}

func (h *CaseHandler) UpdateNotes(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tc, err := h.service.UpdateNotes(id, req.Notes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tc)
}

func (h *CaseHandler) RemoveTag(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	tc, err := h.service.RemoveTag(id, c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tc)
}

func (h *CaseHandler) BulkAddTag(c *gin.Context) {
	var req struct {
		IDs []uint `json:"ids" binding:"required"`
		Tag string `json:"tag" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tagged, err := h.service.BulkAddTag(req.IDs, req.Tag)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tagged": tagged})
}

func (h *CaseHandler) BulkDelete(c *gin.Context) {
	var req struct {
		IDs []uint `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deleted, err := h.service.BulkDelete(req.IDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "deleted": deleted})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// ===== Attachment handlers =====

func (h *CaseHandler) UploadAttachment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	a, err := h.service.SaveAttachment(id, fileHeader.Filename, file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *CaseHandler) DeleteAttachment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteAttachment(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "attachment deleted"})
}

// ===== Import/export handlers =====

// ImportWorkbooks 批量上传 xlsx 文件。单个文件失败不影响其它文件，
// 每个文件各自返回导入数量或错误。
func (h *CaseHandler) ImportWorkbooks(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files uploaded"})
		return
	}
	productType := c.PostForm("productType")

	var uploads []importer.NamedReader
	var opened []interface{ Close() error }
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to open %q: %v", fh.Filename, err)})
			return
		}
		opened = append(opened, f)
		uploads = append(uploads, importer.NamedReader{Name: fh.Filename, Reader: f})
	}
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()

	results := h.importer.ImportFiles(uploads, productType)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *CaseHandler) ExportWorkbook(c *gin.Context) {
	filter := caseFilter(c)
	cases, _, err := h.service.ListCases(filter, -1, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	f, err := importer.Export(cases)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer func() { _ = f.Close() }()

	c.Header("Content-Disposition", `attachment; filename="testcases.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ===== Precondition handlers =====

func (h *CaseHandler) GetPrecondition(c *gin.Context) {
	key := c.Param("key")
	c.JSON(http.StatusOK, gin.H{"key": key, "text": h.service.GlobalPrecondition(key)})
}

func (h *CaseHandler) UpdatePrecondition(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.UpdateGlobalPrecondition(c.Param("key"), req.Text); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "precondition updated"})
}

// ===== helpers =====

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func caseFilter(c *gin.Context) repository.CaseFilter {
	return repository.CaseFilter{
		ProductType:  c.Query("product"),
		MainCategory: c.Query("mainCategory"),
		SubCategory:  c.Query("subCategory"),
		Search:       c.Query("q"),
	}
}
