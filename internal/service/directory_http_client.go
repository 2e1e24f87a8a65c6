package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TeacherDirectory answers whether a teacher belongs to a school and is
// active. The directory itself (teacher CRUD, rosters) lives in another
// service.
type TeacherDirectory interface {
	GetTeacher(ctx context.Context, schoolID, teacherID uuid.UUID) (Teacher, error)
}

type Teacher struct {
	ID       uuid.UUID
	FullName string
	Active   bool
}

type DirectoryHTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewDirectoryHTTPClient(baseURL string, httpClient *http.Client) *DirectoryHTTPClient {
	return &DirectoryHTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type directoryTeacherResponse struct {
	Teacher struct {
		ID       uuid.UUID `json:"id"`
		FullName string    `json:"full_name"`
		Active   bool      `json:"active"`
	} `json:"teacher"`
}

func (c *DirectoryHTTPClient) GetTeacher(ctx context.Context, schoolID, teacherID uuid.UUID) (Teacher, error) {
	if c.baseURL == "" {
		return Teacher{}, ErrInvalidInput
	}

	url := fmt.Sprintf("%s/schools/%s/teachers/%s", c.baseURL, schoolID, teacherID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Teacher{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Teacher{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// continue
	case http.StatusNotFound:
		return Teacher{}, ErrTeacherNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return Teacher{}, ErrUnauthorized
	default:
		return Teacher{}, fmt.Errorf("teacher directory unexpected status: %d", resp.StatusCode)
	}

	var body directoryTeacherResponse
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&body); err != nil {
		return Teacher{}, err
	}

	if body.Teacher.ID == uuid.Nil {
		return Teacher{}, errors.New("directory response missing id")
	}
	if !body.Teacher.Active {
		return Teacher{}, ErrTeacherNotFound
	}

	return Teacher{ID: body.Teacher.ID, FullName: body.Teacher.FullName, Active: body.Teacher.Active}, nil
}

func DefaultDirectoryHTTPClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}
