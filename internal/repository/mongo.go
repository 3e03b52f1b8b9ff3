package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

const (
	reportsCollection  = "reports"
	disputesCollection = "disputes"
)

// MongoRepository implements domain.ReportStore on MongoDB. Each report
// and dispute is a single document, so reads are never torn.
type MongoRepository struct {
	client   *mongo.Client
	reports  *mongo.Collection
	disputes *mongo.Collection
}

// NewMongo connects, pings and ensures indexes.
func NewMongo(ctx context.Context, cfg domain.RepositoryConfig) (*MongoRepository, error) {
	uri := cfg.MongoURI
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	dbName := cfg.MongoDatabase
	if dbName == "" {
		dbName = "snapnearn"
	}

	dctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	opts := options.Client().ApplyURI(uri)
	if cfg.MaxOpenConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxOpenConns))
	}
	client, err := mongo.Connect(dctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(dctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(dbName)
	repo := &MongoRepository{
		client:   client,
		reports:  db.Collection(reportsCollection),
		disputes: db.Collection(disputesCollection),
	}
	if err := repo.createIndexes(dctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	return repo, nil
}

func (m *MongoRepository) createIndexes(ctx context.Context) error {
	_, err := m.reports.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "reporter_id", Value: 1}}},
		{Keys: bson.D{{Key: "vehicle.number_plate", Value: 1}, {Key: "violation_type", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "location.latitude", Value: 1}, {Key: "location.longitude", Value: 1}}},
	})
	if err != nil {
		return err
	}

	_, err = m.disputes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "report_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	return err
}

func (m *MongoRepository) CreateReport(ctx context.Context, r *domain.ViolationReport) error {
	if r.ID == "" {
		return domain.NewValidationError("id", "is required")
	}
	if r.Version == 0 {
		r.Version = 1
	}
	if _, err := m.reports.InsertOne(ctx, r); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("report %s: %w", r.ID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

func (m *MongoRepository) GetReport(ctx context.Context, id string) (*domain.ViolationReport, error) {
	var r domain.ViolationReport
	err := m.reports.FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &domain.NotFoundError{Entity: "report", ID: id}
	}
	if err != nil {
		return nil, err
	}
	normalizeTimes(&r.CreatedAt, &r.UpdatedAt)
	return &r, nil
}

func (m *MongoRepository) UpdateReport(ctx context.Context, r *domain.ViolationReport, expectedVersion int64) error {
	next := expectedVersion + 1
	update := bson.M{"$set": bson.M{
		"status":       r.Status,
		"fraud_risk":   r.FraudRisk,
		"verification": r.Verification,
		"rejection":    r.Rejection,
		"challan":      r.Challan,
		"reward":       r.Reward,
		"version":      next,
		"updated_at":   r.UpdatedAt,
	}}

	res, err := m.reports.UpdateOne(ctx, bson.M{"_id": r.ID, "version": expectedVersion}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return m.missOrConflict(ctx, m.reports, "report", r.ID)
	}
	r.Version = next
	return nil
}

func (m *MongoRepository) missOrConflict(ctx context.Context, col *mongo.Collection, entity, id string) error {
	n, err := col.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.NotFoundError{Entity: entity, ID: id}
	}
	return fmt.Errorf("%s %s: %w", entity, id, domain.ErrConflict)
}

func reportBSON(f domain.ReportFilter) bson.M {
	filter := bson.M{}
	status := bson.M{}
	if f.Status != "" {
		status["$eq"] = f.Status
	}
	if f.ExcludeStatus != "" {
		status["$ne"] = f.ExcludeStatus
	}
	if len(status) > 0 {
		filter["status"] = status
	}
	if f.ViolationType != "" {
		filter["violation_type"] = f.ViolationType
	}
	if f.ReporterID != "" {
		filter["reporter_id"] = f.ReporterID
	}
	if f.NumberPlate != "" {
		filter["vehicle.number_plate"] = domain.NormalizePlate(f.NumberPlate)
	}
	created := bson.M{}
	if !f.CreatedFrom.IsZero() {
		created["$gte"] = f.CreatedFrom.UTC()
	}
	if !f.CreatedTo.IsZero() {
		created["$lte"] = f.CreatedTo.UTC()
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	return filter
}

func (m *MongoRepository) ListReports(ctx context.Context, f domain.ReportFilter) ([]*domain.ViolationReport, error) {
	f = f.Normalize()

	field := "created_at"
	if f.SortBy == domain.SortUpdatedAt {
		field = "updated_at"
	}
	dir := -1
	if f.SortAsc {
		dir = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: field, Value: dir}, {Key: "_id", Value: dir}}).
		SetSkip(int64(f.Offset())).
		SetLimit(int64(f.Limit))

	return m.findReports(ctx, reportBSON(f), opts)
}

func (m *MongoRepository) findReports(ctx context.Context, filter any, opts ...*options.FindOptions) ([]*domain.ViolationReport, error) {
	cur, err := m.reports.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*domain.ViolationReport
	for cur.Next(ctx) {
		var r domain.ViolationReport
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		normalizeTimes(&r.CreatedAt, &r.UpdatedAt)
		out = append(out, &r)
	}
	return out, cur.Err()
}

func (m *MongoRepository) CountReports(ctx context.Context, f domain.ReportFilter) (int64, error) {
	return m.reports.CountDocuments(ctx, reportBSON(f))
}

func (m *MongoRepository) NearbyReports(ctx context.Context, q domain.NearbyQuery) ([]*domain.NearbyReport, error) {
	q = normalizeNearby(q)
	box := boundingBox(q.Latitude, q.Longitude, q.MaxDistanceM)

	candidates, err := m.findReports(ctx, bson.M{
		"location.latitude":  bson.M{"$gte": box.minLat, "$lte": box.maxLat},
		"location.longitude": bson.M{"$gte": box.minLon, "$lte": box.maxLon},
	})
	if err != nil {
		return nil, err
	}
	return rankByDistance(candidates, q), nil
}

func (m *MongoRepository) ReportStats(ctx context.Context, since time.Time) (*domain.ReportStats, error) {
	match := bson.M{}
	if !since.IsZero() {
		match["created_at"] = bson.M{"$gte": since.UTC()}
	}

	stats := &domain.ReportStats{
		ByStatus: make(map[domain.ReportStatus]int64),
		ByType:   make(map[domain.ViolationType]int64),
	}

	groups := []struct {
		field string
		put   func(key string, n int64)
	}{
		{"$status", func(k string, n int64) {
			stats.ByStatus[domain.ReportStatus(k)] = n
			stats.Total += n
		}},
		{"$violation_type", func(k string, n int64) { stats.ByType[domain.ViolationType(k)] = n }},
	}
	for _, g := range groups {
		pipeline := mongo.Pipeline{
			{{Key: "$match", Value: match}},
			{{Key: "$group", Value: bson.D{{Key: "_id", Value: g.field}, {Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
		}
		cur, err := m.reports.Aggregate(ctx, pipeline)
		if err != nil {
			return nil, err
		}
		var rows []struct {
			Key string `bson:"_id"`
			N   int64  `bson:"n"`
		}
		if err := cur.All(ctx, &rows); err != nil {
			return nil, err
		}
		for _, row := range rows {
			g.put(row.Key, row.N)
		}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "fines", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$challan.fine_amount", 0}}}}}},
			{Key: "rewards", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$reward.amount", 0}}}}}},
		}}},
	}
	cur, err := m.reports.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var totals []struct {
		Fines   int64 `bson:"fines"`
		Rewards int64 `bson:"rewards"`
	}
	if err := cur.All(ctx, &totals); err != nil {
		return nil, err
	}
	if len(totals) > 0 {
		stats.TotalFines = totals[0].Fines
		stats.TotalRewards = totals[0].Rewards
	}
	return stats, nil
}

func (m *MongoRepository) DailyCounts(ctx context.Context, since time.Time) ([]domain.DailyCount, error) {
	opts := options.Find().SetProjection(bson.M{"created_at": 1})
	cur, err := m.reports.Find(ctx, bson.M{"created_at": bson.M{"$gte": since.UTC()}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var stamps []time.Time
	for cur.Next(ctx) {
		var doc struct {
			CreatedAt time.Time `bson:"created_at"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		stamps = append(stamps, doc.CreatedAt)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return bucketByDay(stamps, since, time.Now().UTC()), nil
}

func (m *MongoRepository) PurgeReport(ctx context.Context, id string) error {
	res, err := m.reports.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return &domain.NotFoundError{Entity: "report", ID: id}
	}
	if _, err := m.disputes.DeleteMany(ctx, bson.M{"report_id": id}); err != nil {
		slog.Warn("purged report but dispute cleanup failed", "report_id", id, "error", err)
	}
	return nil
}

func (m *MongoRepository) CreateDispute(ctx context.Context, d *domain.Dispute) error {
	if d.Version == 0 {
		d.Version = 1
	}
	if _, err := m.disputes.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("dispute for report %s: %w", d.ReportID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

func (m *MongoRepository) GetDispute(ctx context.Context, id string) (*domain.Dispute, error) {
	return m.findDispute(ctx, bson.M{"_id": id}, id)
}

func (m *MongoRepository) GetDisputeByReport(ctx context.Context, reportID string) (*domain.Dispute, error) {
	return m.findDispute(ctx, bson.M{"report_id": reportID}, "report:"+reportID)
}

func (m *MongoRepository) findDispute(ctx context.Context, filter bson.M, label string) (*domain.Dispute, error) {
	var d domain.Dispute
	err := m.disputes.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &domain.NotFoundError{Entity: "dispute", ID: label}
	}
	if err != nil {
		return nil, err
	}
	normalizeTimes(&d.CreatedAt, &d.UpdatedAt)
	return &d, nil
}

func (m *MongoRepository) UpdateDispute(ctx context.Context, d *domain.Dispute, expectedVersion int64) error {
	next := expectedVersion + 1
	update := bson.M{"$set": bson.M{
		"status":          d.Status,
		"ai_analysis":     d.AIAnalysis,
		"police_decision": d.PoliceDecision,
		"version":         next,
		"updated_at":      d.UpdatedAt,
	}}
	res, err := m.disputes.UpdateOne(ctx, bson.M{"_id": d.ID, "version": expectedVersion}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return m.missOrConflict(ctx, m.disputes, "dispute", d.ID)
	}
	d.Version = next
	return nil
}

func (m *MongoRepository) ListDisputes(ctx context.Context, f domain.DisputeFilter) ([]*domain.Dispute, error) {
	limit, offset := pageOf(f.Page, f.Limit)
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cur, err := m.disputes.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*domain.Dispute
	for cur.Next(ctx) {
		var d domain.Dispute
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		normalizeTimes(&d.CreatedAt, &d.UpdatedAt)
		out = append(out, &d)
	}
	return out, cur.Err()
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// normalizeTimes converts decoded BSON datetimes back to UTC.
func normalizeTimes(ts ...*time.Time) {
	for _, t := range ts {
		*t = t.UTC()
	}
}

// RedactURI hides credentials in a connection string for logging.
func RedactURI(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	return raw[:scheme+3] + "****:****" + raw[at:]
}
