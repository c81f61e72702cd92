package http

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/coliman/portal-cfdi-api/internal/application/cfdis"
	"github.com/coliman/portal-cfdi-api/internal/application/dto"
	"github.com/coliman/portal-cfdi-api/internal/application/ingest"
	"github.com/coliman/portal-cfdi-api/internal/application/validation"
	"github.com/coliman/portal-cfdi-api/internal/domain"
)

// CfdiHandler maneja la ingesta, consulta y validación de comprobantes.
type CfdiHandler struct {
	ingestUC   *ingest.UseCase
	queryUC    *cfdis.UseCase
	reconciler *validation.Reconciler
}

// NewCfdiHandler construye el handler de CFDIs.
func NewCfdiHandler(ingestUC *ingest.UseCase, queryUC *cfdis.UseCase, reconciler *validation.Reconciler) *CfdiHandler {
	return &CfdiHandler{ingestUC: ingestUC, queryUC: queryUC, reconciler: reconciler}
}

// Upload godoc
// @Summary      Subir comprobantes (XML, pares XML+PDF o comprimidos)
// @Tags         cfdis
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Param        files  formData  file  true  "archivos del batch"
// @Success      200    {object}  dto.UploadResponse
// @Failure      400    {object}  dto.ErrorResponse
// @Router       /api/cfdis/upload [post]
func (h *CfdiHandler) Upload(c *fiber.Ctx) error {
	clientID := GetClientID(c)
	if clientID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "client_id requerido"})
	}
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "se esperaba multipart/form-data"})
	}

	// El frontend manda todo bajo el campo "files"; se acepta cualquier campo
	// pero el orden solo está garantizado dentro de cada uno.
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		for _, headers := range form.File {
			fileHeaders = append(fileHeaders, headers...)
		}
	}

	var files []ingest.IncomingFile
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "no se pudo leer " + fh.Filename})
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "no se pudo leer " + fh.Filename})
		}
		files = append(files, ingest.IncomingFile{Name: fh.Filename, Content: content})
	}

	out, err := h.ingestUC.UploadBatch(c.UserContext(), clientID, files)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "EMPTY_BATCH", Message: "el batch no trae archivos"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(out)
}

// ImportFolder godoc
// @Summary      Importar los XML sueltos de la carpeta de insumos
// @Tags         cfdis
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.UploadResponse
// @Router       /api/cfdis/import-folder [post]
func (h *CfdiHandler) ImportFolder(c *fiber.Ctx) error {
	clientID := GetClientID(c)
	if clientID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "client_id requerido"})
	}
	out, err := h.ingestUC.ImportFolder(c.UserContext(), clientID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(out)
}

// List godoc
// @Summary      Listar comprobantes del cliente
// @Tags         cfdis
// @Security     Bearer
// @Produce      json
// @Param        limit   query  int  false  "Límite"   default(20)
// @Param        offset  query  int  false  "Offset"   default(0)
// @Success      200     {object}  dto.ListCfdisResponse
// @Router       /api/cfdis [get]
func (h *CfdiHandler) List(c *fiber.Ctx) error {
	clientID := GetClientID(c)
	if clientID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "client_id requerido"})
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_QUERY", Message: "limit/offset inválidos"})
	}
	out, err := h.queryUC.List(clientID, page)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(out)
}

// GetByID godoc
// @Summary      Detalle de un comprobante (con conceptos)
// @Tags         cfdis
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del comprobante"
// @Success      200  {object}  dto.CfdiDetailResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/cfdis/{id} [get]
func (h *CfdiHandler) GetByID(c *fiber.Ctx) error {
	clientID := GetClientID(c)
	if clientID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "client_id requerido"})
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "MISSING_ID", Message: "id es requerido"})
	}
	out, err := h.queryUC.GetByID(clientID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "comprobante no encontrado"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(out)
}

// Validate godoc
// @Summary      Reconciliar un comprobante contra el SAT
// @Tags         cfdis
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.ValidateCfdiRequest  true  "uuid"
// @Success      200   {object}  dto.ValidateCfdiResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      502   {object}  dto.ErrorResponse
// @Router       /api/cfdis/validate [post]
func (h *CfdiHandler) Validate(c *fiber.Ctx) error {
	clientID := GetClientID(c)
	if clientID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "client_id requerido"})
	}
	var in dto.ValidateCfdiRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.UUID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "uuid es requerido"})
	}
	out, err := h.reconciler.ValidateCfdi(c.UserContext(), clientID, in)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "comprobante no encontrado"})
		}
		if errors.Is(err, domain.ErrSATUnavailable) {
			return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "SAT_UNAVAILABLE", Message: "el servicio del SAT no respondió; reintentar más tarde"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(out)
}

// UpdateEstatus godoc
// @Summary      Asignar estatus manual a un comprobante
// @Tags         cfdis
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string  true  "ID del comprobante"
// @Param        body  body  dto.UpdateEstatusRequest  true  "estatus"
// @Success      204
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/cfdis/{id}/estatus [patch]
func (h *CfdiHandler) UpdateEstatus(c *fiber.Ctx) error {
	clientID := GetClientID(c)
	if clientID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "client_id requerido"})
	}
	id := c.Params("id")
	var in dto.UpdateEstatusRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if err := h.queryUC.UpdateEstatus(clientID, id, in); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "estatus desconocido"})
		}
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "comprobante no encontrado"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
