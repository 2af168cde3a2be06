package featureservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"backend-routetracking/internal/config"
	"backend-routetracking/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const serviceTokenTTL = 15 * time.Minute

// Client talks to the workflow management feature service of one tracking
// server. Every call is a single round trip; nothing is retried.
type Client struct {
	baseURL string
	server  config.ServerConfig
	timeout time.Duration
}

func NewClient(restURL string, server config.ServerConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(restURL, "/"),
		server:  server,
		timeout: time.Duration(server.TimeoutSeconds) * time.Second,
	}
}

func (c *Client) GetAllMobileDevices(ctx context.Context) ([]Device, error) {
	var resp queryResponse[deviceAttributes, geo.Point]
	if err := c.query(ctx, layerDevices, "Deleted = 0", &resp); err != nil {
		return nil, err
	}
	devices := make([]Device, 0, len(resp.Features))
	for _, f := range resp.Features {
		devices = append(devices, decodeDevice(f))
	}
	return devices, nil
}

// AddMobileDevices returns the object ids of the devices the server created.
func (c *Client) AddMobileDevices(ctx context.Context, devices []Device) ([]int64, error) {
	if len(devices) == 0 {
		return nil, nil
	}
	adds := make([]feature[deviceAttributes, geo.Point], 0, len(devices))
	for _, d := range devices {
		adds = append(adds, encodeDevice(d))
	}
	resp, err := c.applyEdits(ctx, layerDevices, edits{Adds: adds})
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, r := range resp.AddResults {
		if r.Success {
			ids = append(ids, r.ObjectID)
		}
	}
	return ids, nil
}

func (c *Client) UpdateMobileDevices(ctx context.Context, devices []Device) error {
	if len(devices) == 0 {
		return nil
	}
	updates := make([]feature[deviceAttributes, geo.Point], 0, len(devices))
	for _, d := range devices {
		updates = append(updates, encodeDevice(d))
	}
	resp, err := c.applyEdits(ctx, layerDevices, edits{Updates: updates})
	if err != nil {
		return err
	}
	return firstFailure(resp.UpdateResults)
}

// DeleteMobileDevices marks the devices deleted on the server.
func (c *Client) DeleteMobileDevices(ctx context.Context, devices []Device) error {
	ids := make([]int64, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ObjectID)
	}
	return c.markDeleted(ctx, layerDevices, ids)
}

func (c *Client) GetNotDeletedStops(ctx context.Context, deviceIDs []int64, plannedDate time.Time) ([]Stop, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}
	var resp queryResponse[stopAttributes, geo.Point]
	if err := c.query(ctx, layerStops, scheduleWhere(deviceIDs, plannedDate), &resp); err != nil {
		return nil, err
	}
	stops := make([]Stop, 0, len(resp.Features))
	for _, f := range resp.Features {
		s, err := decodeStop(f)
		if err != nil {
			return nil, fmt.Errorf("decode stop %d: %w", f.Attributes.ObjectID, err)
		}
		stops = append(stops, s)
	}
	return stops, nil
}

// UpdateStops submits new and changed stops in one batch.
func (c *Client) UpdateStops(ctx context.Context, added, updated []Stop) error {
	if len(added) == 0 && len(updated) == 0 {
		return nil
	}
	adds, err := encodeStops(added)
	if err != nil {
		return err
	}
	updates, err := encodeStops(updated)
	if err != nil {
		return err
	}
	resp, err := c.applyEdits(ctx, layerStops, edits{Adds: adds, Updates: updates})
	if err != nil {
		return err
	}
	if err := firstFailure(resp.AddResults); err != nil {
		return err
	}
	return firstFailure(resp.UpdateResults)
}

func (c *Client) DeleteStops(ctx context.Context, deviceIDs []int64, plannedDate time.Time) error {
	stops, err := c.GetNotDeletedStops(ctx, deviceIDs, plannedDate)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(stops))
	for _, s := range stops {
		ids = append(ids, s.ObjectID)
	}
	return c.markDeleted(ctx, layerStops, ids)
}

func (c *Client) GetNotDeletedRoutes(ctx context.Context, deviceIDs []int64, plannedDate time.Time) ([]Route, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}
	var resp queryResponse[routeAttributes, geo.Point]
	if err := c.query(ctx, layerRoutes, scheduleWhere(deviceIDs, plannedDate), &resp); err != nil {
		return nil, err
	}
	routes := make([]Route, 0, len(resp.Features))
	for _, f := range resp.Features {
		routes = append(routes, decodeRoute(f))
	}
	return routes, nil
}

func (c *Client) GetNotDeletedRoutesIDs(ctx context.Context, deviceIDs []int64, plannedDate time.Time) ([]int64, error) {
	routes, err := c.GetNotDeletedRoutes(ctx, deviceIDs, plannedDate)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(routes))
	for _, r := range routes {
		ids = append(ids, r.ObjectID)
	}
	return ids, nil
}

// UpdateRoutes adds route definitions and soft-deletes the routes in deletedIDs.
func (c *Client) UpdateRoutes(ctx context.Context, added []Route, deletedIDs []int64) error {
	if len(added) == 0 && len(deletedIDs) == 0 {
		return nil
	}
	adds := make([]feature[routeAttributes, geo.Point], 0, len(added))
	for _, r := range added {
		adds = append(adds, encodeRoute(r))
	}
	resp, err := c.applyEdits(ctx, layerRoutes, edits{Adds: adds, Updates: deletedFlags(deletedIDs)})
	if err != nil {
		return err
	}
	if err := firstFailure(resp.AddResults); err != nil {
		return err
	}
	return firstFailure(resp.UpdateResults)
}

// UpdateRouteSettings stores the serialized route settings of a planned date.
func (c *Client) UpdateRouteSettings(ctx context.Context, plannedDate time.Time, settings string) error {
	where := fmt.Sprintf("PlannedDate = %d AND Key = '%s'", millis(plannedDate), routeSettingsKey)
	var existing queryResponse[settingAttributes, geo.Point]
	if err := c.query(ctx, layerSettings, where, &existing); err != nil {
		return err
	}

	record := feature[settingAttributes, geo.Point]{Attributes: settingAttributes{
		PlannedDate: millis(plannedDate),
		Key:         routeSettingsKey,
		Value:       settings,
	}}
	var body edits
	if len(existing.Features) > 0 {
		record.Attributes.ObjectID = existing.Features[0].Attributes.ObjectID
		body.Updates = []feature[settingAttributes, geo.Point]{record}
	} else {
		body.Adds = []feature[settingAttributes, geo.Point]{record}
	}
	resp, err := c.applyEdits(ctx, layerSettings, body)
	if err != nil {
		return err
	}
	if err := firstFailure(resp.AddResults); err != nil {
		return err
	}
	return firstFailure(resp.UpdateResults)
}

// UpdateBarriers replaces the barriers of a planned date on all three layers.
func (c *Client) UpdateBarriers(ctx context.Context, plannedDate time.Time, barriers Barriers) error {
	day := millis(plannedDate)

	points := make([]feature[barrierAttributes, geo.Point], 0, len(barriers.Points))
	for _, b := range barriers.Points {
		loc := b.Location
		points = append(points, feature[barrierAttributes, geo.Point]{
			Attributes: barrierAttributes{PlannedDate: day, Name: b.Name, BarrierType: int(b.Type), AddedCost: b.AddedCost},
			Geometry:   &loc,
		})
	}
	lines := make([]feature[barrierAttributes, geo.Polyline], 0, len(barriers.Lines))
	for _, b := range barriers.Lines {
		path := b.Path
		lines = append(lines, feature[barrierAttributes, geo.Polyline]{
			Attributes: barrierAttributes{PlannedDate: day, Name: b.Name, BarrierType: int(BarrierRestriction)},
			Geometry:   &path,
		})
	}
	polygons := make([]feature[barrierAttributes, geo.Polygon], 0, len(barriers.Polygons))
	for _, b := range barriers.Polygons {
		shape := b.Shape
		polygons = append(polygons, feature[barrierAttributes, geo.Polygon]{
			Attributes: barrierAttributes{PlannedDate: day, Name: b.Name, BarrierType: int(b.Type), ScaledCostFactor: b.ScaledCostFactor},
			Geometry:   &shape,
		})
	}

	if err := c.replaceBarriers(ctx, layerPointBarriers, day, points); err != nil {
		return err
	}
	if err := c.replaceBarriers(ctx, layerLineBarriers, day, lines); err != nil {
		return err
	}
	return c.replaceBarriers(ctx, layerPolygonBarriers, day, polygons)
}

func (c *Client) GetEvents(ctx context.Context, deviceIDs []int64, since time.Time) ([]Event, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}
	where := fmt.Sprintf("%s AND Timestamp >= %d", deviceWhere(deviceIDs), millis(since))
	var resp queryResponse[eventAttributes, geo.Point]
	if err := c.query(ctx, layerEvents, where, &resp); err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(resp.Features))
	for _, f := range resp.Features {
		events = append(events, decodeEvent(f))
	}
	return events, nil
}

func (c *Client) replaceBarriers(ctx context.Context, layer string, day int64, adds any) error {
	var existing queryResponse[barrierAttributes, geo.Point]
	if err := c.query(ctx, layer, fmt.Sprintf("PlannedDate = %d", day), &existing); err != nil {
		return err
	}
	deletes := make([]int64, 0, len(existing.Features))
	for _, f := range existing.Features {
		deletes = append(deletes, f.Attributes.ObjectID)
	}
	resp, err := c.applyEdits(ctx, layer, edits{Adds: adds, Deletes: deletes})
	if err != nil {
		return err
	}
	if err := firstFailure(resp.DeleteResults); err != nil {
		return err
	}
	return firstFailure(resp.AddResults)
}

func (c *Client) markDeleted(ctx context.Context, layer string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	resp, err := c.applyEdits(ctx, layer, edits{Updates: deletedFlags(ids)})
	if err != nil {
		return err
	}
	return firstFailure(resp.UpdateResults)
}

func (c *Client) query(ctx context.Context, layer, where string, out any) error {
	params := url.Values{}
	params.Set("where", where)
	params.Set("outFields", "*")
	params.Set("f", "json")

	body, err := c.do(ctx, fiber.MethodGet, c.baseURL+"/"+layer+"/query?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s query: %v", ErrCommunication, layer, err)
	}
	if e, ok := out.(interface{ serviceError() *errorBody }); ok {
		if eb := e.serviceError(); eb != nil {
			return eb.err()
		}
	}
	return nil
}

func (c *Client) applyEdits(ctx context.Context, layer string, payload edits) (editsResponse, error) {
	body, err := c.do(ctx, fiber.MethodPost, c.baseURL+"/"+layer+"/applyEdits?f=json", payload)
	if err != nil {
		return editsResponse{}, err
	}
	var resp editsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return editsResponse{}, fmt.Errorf("%w: decode %s edits: %v", ErrCommunication, layer, err)
	}
	if resp.Error != nil {
		return editsResponse{}, resp.Error.err()
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, uri string, payload any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}

	token, err := c.token()
	if err != nil {
		return nil, fmt.Errorf("%w: sign service token: %v", ErrAuthentication, err)
	}

	a := fiber.AcquireAgent()
	req := a.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	a.Set(fiber.HeaderXRequestID, uuid.NewString())
	if payload != nil {
		a.JSON(payload)
	}
	if timeout := c.requestTimeout(ctx); timeout > 0 {
		a.Timeout(timeout)
	}
	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		slog.Warn("tracking server request failed", "method", method, "error", errs[0])
		return nil, fmt.Errorf("%w: %v", ErrCommunication, errs[0])
	}
	switch {
	case code == fiber.StatusUnauthorized || code == fiber.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrAuthentication, code)
	case code >= fiber.StatusBadRequest:
		var wrapped struct {
			Error *errorBody `json:"error"`
		}
		if json.Unmarshal(body, &wrapped) == nil && wrapped.Error != nil {
			return nil, wrapped.Error.err()
		}
		return nil, &ServiceError{Code: code, Message: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func (c *Client) requestTimeout(ctx context.Context) time.Duration {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout == 0 || left < timeout {
			timeout = left
		}
	}
	return timeout
}

// token returns the configured bearer token, or signs a short-lived one
// when the server is configured with a signing secret.
func (c *Client) token() (string, error) {
	if c.server.Token != "" {
		return c.server.Token, nil
	}
	if c.server.SigningSecret == "" {
		return "", nil
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   c.server.Name,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(serviceTokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.server.SigningSecret))
}

func (r *queryResponse[A, G]) serviceError() *errorBody { return r.Error }

func encodeStops(stops []Stop) ([]feature[stopAttributes, geo.Point], error) {
	out := make([]feature[stopAttributes, geo.Point], 0, len(stops))
	for _, s := range stops {
		f, err := encodeStop(s)
		if err != nil {
			return nil, fmt.Errorf("encode stop %s: %w", s.ID, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func deletedFlags(ids []int64) []deletedFlag {
	if len(ids) == 0 {
		return nil
	}
	out := make([]deletedFlag, 0, len(ids))
	for _, id := range ids {
		out = append(out, deletedFlag{ObjectID: id, Deleted: 1})
	}
	return out
}

func firstFailure(results []editResult) error {
	for _, r := range results {
		if r.Success {
			continue
		}
		if r.Error != nil {
			return r.Error.err()
		}
		return &ServiceError{Code: 500, Message: fmt.Sprintf("edit of feature %d failed", r.ObjectID)}
	}
	return nil
}

func deviceWhere(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return "DeviceID IN (" + strings.Join(parts, ",") + ")"
}

func scheduleWhere(deviceIDs []int64, plannedDate time.Time) string {
	return fmt.Sprintf("%s AND PlannedDate = %d AND Deleted = 0", deviceWhere(deviceIDs), millis(plannedDate))
}
