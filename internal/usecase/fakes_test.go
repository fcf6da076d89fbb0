package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"GISData-App/internal/domain/model"
	"GISData-App/internal/domain/repository"
)

// memoryStore ファイルと地物をメモリ上に保持する
type memoryStore struct {
	files     []*model.FileRecord
	features  []model.Feature
	createErr error
}

type fakeFileRepository struct{ s *memoryStore }
type fakeFeatureRepository struct{ s *memoryStore }

func newMemoryStore() (*memoryStore, *fakeFileRepository, *fakeFeatureRepository) {
	s := &memoryStore{}
	return s, &fakeFileRepository{s}, &fakeFeatureRepository{s}
}

// addFile テスト用にファイルと地物を登録する
func (s *memoryStore) addFile(file model.FileRecord, features ...model.Feature) {
	f := file
	f.TotalFeatures = len(features)
	s.files = append(s.files, &f)
	for i, feat := range features {
		if feat.ID == "" {
			feat.ID = fmt.Sprintf("%s-f%d", file.ID, i)
		}
		feat.FileID = file.ID
		s.features = append(s.features, feat)
	}
}

func (r *fakeFileRepository) CreateWithFeatures(ctx context.Context, file *model.FileRecord, features []model.Feature) error {
	if r.s.createErr != nil {
		return r.s.createErr
	}
	r.s.addFile(*file, features...)
	file.TotalFeatures = len(features)
	return nil
}

func (r *fakeFileRepository) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	for _, f := range r.s.files {
		if f.ID == id {
			copied := *f
			return &copied, nil
		}
	}
	return nil, model.NewNotFoundError("File " + id + " not found")
}

func (r *fakeFileRepository) Delete(ctx context.Context, id string) error {
	for i, f := range r.s.files {
		if f.ID == id {
			r.s.files = append(r.s.files[:i], r.s.files[i+1:]...)
			kept := r.s.features[:0]
			for _, feat := range r.s.features {
				if feat.FileID != id {
					kept = append(kept, feat)
				}
			}
			r.s.features = kept
			return nil
		}
	}
	return model.NewNotFoundError("File " + id + " not found")
}

func (r *fakeFileRepository) ListFiles(ctx context.Context, filter model.FileFilter) ([]model.FileRecord, error) {
	var out []model.FileRecord
	for _, f := range r.s.files {
		if contains(f.State, filter.State) && contains(f.District, filter.District) {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (r *fakeFileRepository) ListStates(ctx context.Context) ([]string, error) {
	var values []string
	for _, f := range r.s.files {
		values = append(values, f.State)
	}
	return distinct(values), nil
}

func (r *fakeFileRepository) ListDistricts(ctx context.Context, state string) ([]string, error) {
	var values []string
	for _, f := range r.s.files {
		if contains(f.State, state) {
			values = append(values, f.District)
		}
	}
	return distinct(values), nil
}

func (r *fakeFeatureRepository) GetByID(ctx context.Context, id string) (*model.Feature, error) {
	for _, f := range r.s.features {
		if f.ID == id {
			copied := f
			return &copied, nil
		}
	}
	return nil, model.NewNotFoundError("Feature " + id + " not found")
}

func (r *fakeFeatureRepository) ListByFile(ctx context.Context, fileID string, skip, limit int) ([]model.Feature, error) {
	all, _ := r.ListByFileIDs(ctx, []string{fileID})
	if skip >= len(all) {
		return []model.Feature{}, nil
	}
	all = all[skip:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeFeatureRepository) ListByFileIDs(ctx context.Context, fileIDs []string) ([]model.Feature, error) {
	out := []model.Feature{}
	for _, id := range fileIDs {
		for _, f := range r.s.features {
			if f.FileID == id {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (r *fakeFeatureRepository) ListByIDs(ctx context.Context, ids []string) ([]model.Feature, error) {
	out := []model.Feature{}
	for _, id := range ids {
		if f, err := r.GetByID(ctx, id); err == nil {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (r *fakeFeatureRepository) List(ctx context.Context, filter model.FeatureFilter) ([]model.Feature, error) {
	return append([]model.Feature{}, r.s.features...), nil
}

func (r *fakeFeatureRepository) ListStates(ctx context.Context) ([]string, error) {
	return []string{"Karnataka"}, nil
}

func (r *fakeFeatureRepository) ListDistricts(ctx context.Context, state string) ([]string, error) {
	return []string{"Mandya"}, nil
}

func (r *fakeFeatureRepository) ListTaluks(ctx context.Context, district string) ([]string, error) {
	return []string{"Maddur"}, nil
}

func (r *fakeFeatureRepository) ListVillages(ctx context.Context, district, taluk string) ([]string, error) {
	return []string{"Besagarahalli"}, nil
}

func (r *fakeFeatureRepository) Update(ctx context.Context, id string, update repository.FeatureGeometryUpdate) (*model.Feature, error) {
	for i := range r.s.features {
		f := &r.s.features[i]
		if f.ID != id {
			continue
		}
		if update.Name != nil {
			f.Name = *update.Name
		}
		if update.Properties != nil {
			f.Properties = update.Properties
		}
		if update.Geometry != nil {
			f.Geometry = update.Geometry
		}
		copied := *f
		return &copied, nil
	}
	return nil, model.NewNotFoundError("Feature " + id + " not found")
}

func (r *fakeFeatureRepository) Delete(ctx context.Context, id string) error {
	for i, f := range r.s.features {
		if f.ID == id {
			r.s.features = append(r.s.features[:i], r.s.features[i+1:]...)
			return nil
		}
	}
	return model.NewNotFoundError("Feature " + id + " not found")
}

func (r *fakeFeatureRepository) Spatial(ctx context.Context, q repository.SpatialQuery) ([]model.Feature, error) {
	return append([]model.Feature{}, r.s.features...), nil
}

type fakeReportRepository struct {
	saved   map[string]*model.UploadReport
	saveErr error
}

func newFakeReportRepository() *fakeReportRepository {
	return &fakeReportRepository{saved: map[string]*model.UploadReport{}}
}

func (r *fakeReportRepository) Save(ctx context.Context, report *model.UploadReport, ttlHours int) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved[report.FileID] = report
	return nil
}

func (r *fakeReportRepository) Get(ctx context.Context, fileID string) (*model.UploadReport, error) {
	if rep, ok := r.saved[fileID]; ok {
		return rep, nil
	}
	return nil, model.NewNotFoundError("report not found")
}

type fakeBlobStore struct {
	objects map[string][]byte
	putErr  error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}}
}

func (b *fakeBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if b.putErr != nil {
		return "", b.putErr
	}
	path := "gs://test-bucket/" + key
	b.objects[path] = data
	return path, nil
}

func (b *fakeBlobStore) Delete(ctx context.Context, path string) error {
	if _, ok := b.objects[path]; !ok {
		return errors.New("object not found")
	}
	delete(b.objects, path)
	return nil
}

type fakeMetrics struct {
	uploads     map[string]int
	conversions map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{uploads: map[string]int{}, conversions: map[string]int{}}
}

func (m *fakeMetrics) RecordUpload(fileType, result string, stored, skipped int, transformed map[string]int) {
	m.uploads[fileType+"/"+result]++
}

func (m *fakeMetrics) RecordConversion(format, result string) {
	m.conversions[format+"/"+result]++
}

func contains(value, filter string) bool {
	return filter == "" || strings.Contains(strings.ToLower(value), strings.ToLower(filter))
}

func distinct(values []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, v := range values {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
