package utils

import "github.com/gofiber/fiber/v2"

type successEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type pageEnvelope struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data"`
	Pagination PageMeta    `json:"pagination"`
}

type PageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

func Success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(successEnvelope{Success: true, Data: data})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(errorEnvelope{Success: false, Error: message})
}

// Paginated wraps a page of results together with the paging metadata the
// listing endpoints expose.
func Paginated(c *fiber.Ctx, data interface{}, p PaginationParams, total int64) error {
	totalPages := 0
	if p.Limit > 0 {
		totalPages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}

	return c.Status(fiber.StatusOK).JSON(pageEnvelope{
		Success: true,
		Data:    data,
		Pagination: PageMeta{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}
