package ingest

import (
	"context"
	"path"
	"strings"

	"github.com/coliman/portal-cfdi-api/internal/application/dto"
	"github.com/coliman/portal-cfdi-api/internal/infrastructure/storage"
)

// ImportFolder ingesta los XML sueltos de la carpeta de insumos en disco
// (flujo de carga manual: alguien copia archivos por SMB y dispara el import).
// Los archivos ingresados o duplicados se retiran de la carpeta; los que
// fallaron por parseo se quedan para inspección.
func (uc *UseCase) ImportFolder(ctx context.Context, clientID string) (*dto.UploadResponse, error) {
	names, err := uc.store.ListDropFolder()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return &dto.UploadResponse{
			Results:      []dto.UploadItemResult{},
			ErrorsDetail: []dto.UploadItemError{},
		}, nil
	}

	var files []IncomingFile
	var unreadable []string
	for _, name := range names {
		content, err := uc.store.ReadDropFile(name)
		if err != nil {
			uc.log.Warn().Err(err).Str("archivo", name).Msg("no se pudo leer insumo")
			unreadable = append(unreadable, name)
			continue
		}
		files = append(files, IncomingFile{Name: name, Content: content})

		// PDF hermano opcional (mismo nombre base).
		pdfName := strings.TrimSuffix(name, path.Ext(name)) + ".pdf"
		if pdf, err := uc.store.ReadDropFile(pdfName); err == nil && pdf != nil {
			files = append(files, IncomingFile{Name: pdfName, Content: pdf})
		}
	}

	// Un insumo ilegible es un fallo de I/O, no un batch inválido: deja su
	// renglón de error y el archivo se queda en la carpeta para inspección.
	resp := &dto.UploadResponse{
		Results:      []dto.UploadItemResult{},
		ErrorsDetail: []dto.UploadItemError{},
	}
	if len(files) > 0 {
		resp, err = uc.UploadBatch(ctx, clientID, files)
		if err != nil {
			return nil, err
		}
	}
	for _, name := range unreadable {
		addError(resp, name, StatusError, "no se pudo leer el insumo de la carpeta")
	}
	resp.TotalFiles += len(unreadable)

	for _, item := range resp.Results {
		if item.Status != StatusSuccess && item.Status != StatusDuplicate {
			continue
		}
		uc.removeFiles(path.Join(storage.DropFolderName, item.Filename))
		pdfName := strings.TrimSuffix(item.Filename, path.Ext(item.Filename)) + ".pdf"
		uc.removeFiles(path.Join(storage.DropFolderName, pdfName))
	}
	return resp, nil
}
