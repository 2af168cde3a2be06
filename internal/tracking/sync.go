package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"backend-routetracking/internal/featureservice"
	"backend-routetracking/internal/project"

	"github.com/google/uuid"
)

// SyncService keeps the local device roster and the tracking server's
// device list in step. Devices are matched by tracking id, which is the
// remote device name.
type SyncService struct {
	service Service
}

func NewSyncService(service Service) *SyncService {
	return &SyncService{service: service}
}

// UpdateFromServer removes tracked local devices unknown to the server and
// adds a local device for every server device not yet represented. Several
// local devices may share one tracking id; each one accounts for one server
// device with that id.
func (s *SyncService) UpdateFromServer(ctx context.Context, p Project) error {
	if p == nil {
		return fmt.Errorf("%w: project", ErrNilArgument)
	}

	remote, err := s.namedDevices(ctx)
	if err != nil {
		return err
	}
	remoteIDs := make(map[string]struct{}, len(remote))
	for _, d := range remote {
		remoteIDs[d.Name] = struct{}{}
	}

	localCount := map[string]int{}
	removed := 0
	for _, d := range p.MobileDevices() {
		if !d.Tracked() {
			continue
		}
		if _, ok := remoteIDs[d.TrackingID]; !ok {
			p.RemoveMobileDevice(d)
			removed++
			continue
		}
		localCount[d.TrackingID]++
	}

	added := 0
	for _, d := range remote {
		if localCount[d.Name] > 0 {
			localCount[d.Name]--
			continue
		}
		p.AddMobileDevice(&project.MobileDevice{
			ID:         uuid.NewString(),
			Name:       d.Name,
			TrackingID: d.Name,
			SyncType:   project.SyncTypeWMServer,
		})
		added++
	}

	slog.Info("mobile devices synchronized", "added", added, "removed", removed)
	return nil
}

// AddDevices creates server devices for tracking ids the server lacks. A
// short reply from the server is logged, not returned: the next sync
// picks the missing devices up again.
func (s *SyncService) AddDevices(ctx context.Context, trackingIDs []string) error {
	ids := uniqueIDs(trackingIDs)
	if len(ids) == 0 {
		return nil
	}

	remote, err := s.namedDevices(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(remote))
	for _, d := range remote {
		known[d.Name] = struct{}{}
	}

	var missing []featureservice.Device
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, featureservice.Device{Name: id})
		}
	}
	if len(missing) == 0 {
		return nil
	}

	created, err := s.service.AddMobileDevices(ctx, missing)
	if err != nil {
		return err
	}
	if len(created) != len(missing) {
		slog.Error("tracking server created fewer devices than requested",
			"requested", len(missing), "created", len(created))
	}
	return nil
}

// UpdateTrackingIDs renames server devices from old to new tracking ids.
func (s *SyncService) UpdateTrackingIDs(ctx context.Context, ids map[string]string) error {
	if ids == nil {
		return fmt.Errorf("%w: tracking id map", ErrNilArgument)
	}

	remote, err := s.namedDevices(ctx)
	if err != nil {
		return err
	}
	byName := map[string][]featureservice.Device{}
	for _, d := range remote {
		byName[d.Name] = append(byName[d.Name], d)
	}

	oldIDs := make([]string, 0, len(ids))
	for old := range ids {
		oldIDs = append(oldIDs, old)
	}
	sort.Strings(oldIDs)

	var updates []featureservice.Device
	for _, old := range oldIDs {
		renamed := ids[old]
		if renamed == "" || renamed == old {
			continue
		}
		for _, d := range byName[old] {
			updates = append(updates, featureservice.Device{
				ObjectID:  d.ObjectID,
				Name:      renamed,
				Location:  d.Location,
				Timestamp: d.Timestamp,
			})
		}
	}
	if len(updates) == 0 {
		return nil
	}
	return s.service.UpdateMobileDevices(ctx, updates)
}

// DeleteDevices deletes server devices for the given tracking ids, but only
// those not backed by a local device: with n local devices sharing an id,
// the n server devices with the lowest object ids stay.
func (s *SyncService) DeleteDevices(ctx context.Context, p Project, trackingIDs []string) error {
	if p == nil {
		return fmt.Errorf("%w: project", ErrNilArgument)
	}
	if trackingIDs == nil {
		return fmt.Errorf("%w: tracking ids", ErrNilArgument)
	}
	ids := uniqueIDs(trackingIDs)
	if len(ids) == 0 {
		return nil
	}

	remote, err := s.namedDevices(ctx)
	if err != nil {
		return err
	}
	byName := map[string][]featureservice.Device{}
	for _, d := range remote {
		byName[d.Name] = append(byName[d.Name], d)
	}
	localCount := map[string]int{}
	for _, d := range p.MobileDevices() {
		if d.Tracked() {
			localCount[d.TrackingID]++
		}
	}

	var doomed []featureservice.Device
	for _, id := range ids {
		candidates := byName[id]
		local := localCount[id]
		if local >= len(candidates) {
			continue
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ObjectID < candidates[j].ObjectID })
		doomed = append(doomed, candidates[local:]...)
	}
	if len(doomed) == 0 {
		return nil
	}
	return s.service.DeleteMobileDevices(ctx, doomed)
}

func (s *SyncService) namedDevices(ctx context.Context) ([]featureservice.Device, error) {
	all, err := s.service.GetAllMobileDevices(ctx)
	if err != nil {
		return nil, err
	}
	named := make([]featureservice.Device, 0, len(all))
	for _, d := range all {
		if d.Name != "" {
			named = append(named, d)
		}
	}
	return named, nil
}

// uniqueIDs drops empty and repeated ids, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
