package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sort"

	"github.com/fallout666222/media-client-manager/internal/clients"
	"github.com/fallout666222/media-client-manager/internal/mediatypes"
	"github.com/fallout666222/media-client-manager/internal/timesheet"
)

// ClientDirectory resolves client names for rendered rows.
type ClientDirectory interface {
	Get(ctx context.Context, id int64) (*clients.Client, error)
}

// MediaTypeDirectory resolves media type names for rendered rows.
type MediaTypeDirectory interface {
	Get(ctx context.Context, id int64) (*mediatypes.MediaType, error)
}

// WeekSummaryRenderer builds the week summary PDF served by the timesheet
// export endpoint.
type WeekSummaryRenderer struct {
	client     *Client
	clients    ClientDirectory
	mediaTypes MediaTypeDirectory
}

// NewWeekSummaryRenderer constructs a renderer backed by Gotenberg.
func NewWeekSummaryRenderer(client *Client, clientDir ClientDirectory, mediaTypeDir MediaTypeDirectory) *WeekSummaryRenderer {
	return &WeekSummaryRenderer{client: client, clients: clientDir, mediaTypes: mediaTypeDir}
}

type summaryRow struct {
	Client    string
	MediaType string
	Hours     float64
	Status    string
}

type summaryData struct {
	UserName      string
	WeekKey       string
	WeekName      string
	Status        string
	Rows          []summaryRow
	TotalHours    float64
	RequiredHours float64
}

var summaryTemplate = template.Must(template.New("week-summary").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Week {{.WeekKey}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #999; padding: 6px 10px; text-align: left; }
td.num { text-align: right; }
tfoot td { font-weight: bold; }
</style>
</head>
<body>
<h1>Timesheet week {{.WeekKey}}</h1>
<p>{{.UserName}}{{if .WeekName}} &mdash; {{.WeekName}}{{end}}, status: {{.Status}}</p>
<table>
<thead><tr><th>Client</th><th>Media type</th><th>Hours</th><th>Status</th></tr></thead>
<tbody>
{{range .Rows}}<tr><td>{{.Client}}</td><td>{{.MediaType}}</td><td class="num">{{printf "%.2f" .Hours}}</td><td>{{.Status}}</td></tr>
{{end}}</tbody>
<tfoot><tr><td colspan="2">Total</td><td class="num">{{printf "%.2f" .TotalHours}}</td><td>of {{printf "%.2f" .RequiredHours}} required</td></tr></tfoot>
</table>
</body>
</html>`))

// WeekSummaryPDF renders the resolved week into a PDF document.
func (r *WeekSummaryRenderer) WeekSummaryPDF(ctx context.Context, view *timesheet.WeekView, userName string) ([]byte, error) {
	data := summaryData{
		UserName:      userName,
		WeekKey:       view.Week.Key,
		WeekName:      view.Week.Name,
		Status:        string(view.Status),
		TotalHours:    view.TotalHours,
		RequiredHours: view.RequiredHours,
	}

	for clientID, byMediaType := range view.Entries {
		clientName, err := r.clientName(ctx, clientID)
		if err != nil {
			return nil, err
		}
		for mediaTypeID, cell := range byMediaType {
			mediaTypeName, err := r.mediaTypeName(ctx, mediaTypeID)
			if err != nil {
				return nil, err
			}
			data.Rows = append(data.Rows, summaryRow{
				Client:    clientName,
				MediaType: mediaTypeName,
				Hours:     cell.Hours,
				Status:    string(cell.Status),
			})
		}
	}
	sort.Slice(data.Rows, func(i, j int) bool {
		if data.Rows[i].Client != data.Rows[j].Client {
			return data.Rows[i].Client < data.Rows[j].Client
		}
		return data.Rows[i].MediaType < data.Rows[j].MediaType
	})

	var html bytes.Buffer
	if err := summaryTemplate.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("render summary template: %w", err)
	}
	return r.client.RenderHTML(ctx, html.String())
}

func (r *WeekSummaryRenderer) clientName(ctx context.Context, id int64) (string, error) {
	c, err := r.clients.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("resolve client %d: %w", id, err)
	}
	return c.Name, nil
}

func (r *WeekSummaryRenderer) mediaTypeName(ctx context.Context, id int64) (string, error) {
	mt, err := r.mediaTypes.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("resolve media type %d: %w", id, err)
	}
	return mt.Name, nil
}
