package api

import (
	"errors"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"catcharity/internal/constants"
	"catcharity/internal/upload"
)

// multipartOverhead leaves room for the text fields next to the photo.
const multipartOverhead = 64 << 10

// catForm is the cat payload of POST /newcats and PUT /catslist/edit/{id},
// sent either as multipart/form-data (with an optional photo) or as JSON.
type catForm struct {
	Name        string `json:"name" validate:"max=200"`
	Age         int    `json:"age" validate:"min=0,max=100"`
	Breed       string `json:"breed" validate:"max=200"`
	Description string `json:"description" validate:"max=2000"`

	file    multipart.File
	header  *multipart.FileHeader
	cleanup func()
}

func (f *catForm) hasPhoto() bool {
	return f.file != nil
}

func (f *catForm) Close() {
	if f.file != nil {
		f.file.Close()
	}
	if f.cleanup != nil {
		f.cleanup()
	}
}

func (f *catForm) sanitize() {
	f.Name = sanitizeText(f.Name)
	f.Breed = sanitizeText(f.Breed)
	f.Description = sanitizeText(f.Description)
}

// readCatForm writes the error response itself and returns false when the
// request is unusable.
func readCatForm(w http.ResponseWriter, r *http.Request, maxUploadBytes int64) (*catForm, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, constants.MaxJSONBodyBytes)
		form := &catForm{}
		if err := decodeAndValidate(r.Body, form); err != nil {
			badRequest(w, err.Error())
			return nil, false
		}
		form.sanitize()
		return form, true
	}

	if maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+multipartOverhead)
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		if isBodyTooLargeError(err) {
			payloadTooLarge(w, "File exceeds maximum upload size")
		} else {
			badRequest(w, "Invalid multipart upload")
		}
		return nil, false
	}

	form := &catForm{
		Name:        r.FormValue("name"),
		Breed:       r.FormValue("breed"),
		Description: r.FormValue("description"),
		cleanup: func() {
			if r.MultipartForm != nil {
				r.MultipartForm.RemoveAll()
			}
		},
	}

	if raw := strings.TrimSpace(r.FormValue("age")); raw != "" {
		age, err := strconv.Atoi(raw)
		if err != nil {
			form.Close()
			badRequest(w, "age must be a whole number")
			return nil, false
		}
		form.Age = age
	}

	if files := r.MultipartForm.File["photo"]; len(files) > 1 {
		form.Close()
		badRequest(w, "Only one photo may be uploaded")
		return nil, false
	}

	file, header, err := r.FormFile("photo")
	switch {
	case err == nil:
		form.file = file
		form.header = header
	case errors.Is(err, http.ErrMissingFile):
	default:
		form.Close()
		badRequest(w, "Invalid photo upload")
		return nil, false
	}

	if err := validateStruct(form); err != nil {
		form.Close()
		badRequest(w, err.Error())
		return nil, false
	}

	form.sanitize()
	return form, true
}

func handleUploadSaveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, upload.ErrFileTooLarge), errors.Is(err, upload.ErrImageTooLarge):
		payloadTooLarge(w, "File exceeds maximum upload size")
	case errors.Is(err, upload.ErrExecutableFile):
		unsupportedMediaType(w, "Executable files are not allowed")
	case errors.Is(err, upload.ErrDisallowedType), errors.Is(err, upload.ErrInvalidImage):
		unsupportedMediaType(w, "Only JPEG, PNG, GIF and WebP images are allowed")
	case isBodyTooLargeError(err):
		payloadTooLarge(w, "File exceeds maximum upload size")
	default:
		slog.Error("error saving upload", "error", err)
		internalError(w)
	}
}

func isBodyTooLargeError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "request body too large")
}

// removeUploads deletes stored photo files after the records referencing
// them are gone. Failures leave the file to the orphan sweeper.
func removeUploads(uploads *upload.Service, urls []string) {
	for _, url := range urls {
		if err := uploads.Delete(url); err != nil {
			slog.Warn("error removing upload", "error", err, "url", url)
		}
	}
}
