package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/core/usecases"
	"github.com/environmenttech/wastewatch/internal/pkg/auth"
)

type createReportRequest struct {
	Description   string             `json:"description"`
	Location      *domain.Coordinate `json:"location"`
	LocationLabel string             `json:"location_label"`
	Rank          *int               `json:"rank"`
	Event         string             `json:"event"`
	ImageURLs     []string           `json:"image_urls"`
}

// CreateReportHandler files a new report for the authenticated caller.
func CreateReportHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := claimsFrom(c)

		var req createReportRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Location == nil {
			return newError(c, fiber.StatusBadRequest, "invalid_coordinate", "location is required")
		}

		report, err := deps.Reports.Create(c.UserContext(), usecases.NewReport{
			UserID:        claims.UserID,
			Email:         claims.Email,
			Description:   req.Description,
			Location:      *req.Location,
			LocationLabel: req.LocationLabel,
			Rank:          req.Rank,
			Event:         req.Event,
			ImageURLs:     req.ImageURLs,
		})
		if err != nil {
			return errFromDomain(c, err)
		}

		c.Location("/v1/reports/" + report.ID)
		return c.Status(fiber.StatusCreated).JSON(report)
	}
}

// ListReportsHandler returns a filtered page of reports, newest first.
// Reporter e-mail addresses are only shown to admins.
func ListReportsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parseReportQuery(c)
		if err != nil {
			return errFromDomain(c, err)
		}

		reports, total, err := deps.Reports.List(c.UserContext(), q)
		if err != nil {
			return errFromDomain(c, err)
		}
		if reports == nil {
			reports = []domain.WasteReport{}
		}
		if !isAdmin(c) {
			for i := range reports {
				redact(&reports[i], claimsFrom(c))
			}
		}

		pg := Pagination{Offset: q.Offset, Limit: q.Limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: reports, Pagination: pg})
	}
}

// GetReportHandler returns one report.
func GetReportHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := deps.Reports.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		if !isAdmin(c) {
			redact(report, claimsFrom(c))
		}
		return c.JSON(report)
	}
}

func parseReportQuery(c *fiber.Ctx) (domain.ReportQuery, error) {
	filter, err := domain.ParseReportFilter(c.Query("filter"))
	if err != nil {
		return domain.ReportQuery{}, err
	}

	var priority domain.Priority
	switch p := strings.ToLower(c.Query("priority")); p {
	case "":
	case "high":
		priority = domain.PriorityHigh
	case "low":
		priority = domain.PriorityLow
	default:
		return domain.ReportQuery{}, domainValidation("priority must be high or low")
	}

	search := c.Query("q")
	if len(search) > 200 {
		return domain.ReportQuery{}, domainValidation("query too long (max 200 characters)")
	}

	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 20)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	return domain.ReportQuery{
		Filter:   filter,
		Priority: priority,
		Search:   search,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

func isAdmin(c *fiber.Ctx) bool {
	claims := claimsFrom(c)
	return claims != nil && claims.HasRole(auth.RoleAdmin)
}

// redact hides other reporters' contact details.
func redact(r *domain.WasteReport, viewer *auth.Claims) {
	if viewer != nil && viewer.UserID == r.UserID {
		return
	}
	r.ReporterEmail = ""
}
