package job

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDB key layout.
const (
	pkPrefix = "JOB#"
	skMeta   = "META"
)

// RecordTTL is how long job records are kept before DynamoDB expires them.
const RecordTTL = 30 * 24 * time.Hour

// DynamoAPI is the subset of the DynamoDB client used by DynamoRepository.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Compile-time check that DynamoRepository implements Repository.
var _ Repository = (*DynamoRepository)(nil)

// DynamoRepository stores jobs in a DynamoDB table keyed by PK/SK.
type DynamoRepository struct {
	client    DynamoAPI
	tableName string
}

// NewDynamoRepository creates a DynamoRepository for the given table.
func NewDynamoRepository(client DynamoAPI, tableName string) *DynamoRepository {
	return &DynamoRepository{client: client, tableName: tableName}
}

// record is the persisted form of a Job.
type record struct {
	ID                string    `dynamodbav:"-"`
	UserID            string    `dynamodbav:"userId"`
	Status            Status    `dynamodbav:"status"`
	ClipIDs           []string  `dynamodbav:"clipIds,omitempty"`
	MusicTrackID      string    `dynamodbav:"musicTrackId,omitempty"`
	MusicVolume       float64   `dynamodbav:"musicVolume"`
	TransitionType    string    `dynamodbav:"transitionType,omitempty"`
	TransitionSeconds float64   `dynamodbav:"transitionSeconds"`
	AspectRatio       string    `dynamodbav:"aspectRatio,omitempty"`
	OutputPath        string    `dynamodbav:"outputPath,omitempty"`
	Error             string    `dynamodbav:"error,omitempty"`
	Stats             *Stats    `dynamodbav:"stats,omitempty"`
	CreatedAt         time.Time `dynamodbav:"createdAt"`
	UpdatedAt         time.Time `dynamodbav:"updatedAt"`
	StartedAt         time.Time `dynamodbav:"startedAt,omitempty"`
	CompletedAt       time.Time `dynamodbav:"completedAt,omitempty"`
}

func jobPK(jobID string) string {
	return pkPrefix + jobID
}

func toRecord(j *Job) record {
	c := j.Clone()
	return record{
		ID:                c.ID,
		UserID:            c.UserID,
		Status:            c.Status,
		ClipIDs:           c.ClipIDs,
		MusicTrackID:      c.MusicTrackID,
		MusicVolume:       c.MusicVolume,
		TransitionType:    c.TransitionType,
		TransitionSeconds: c.TransitionSeconds,
		AspectRatio:       c.AspectRatio,
		OutputPath:        c.OutputPath,
		Error:             c.Error,
		Stats:             c.Stats,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
		StartedAt:         c.StartedAt,
		CompletedAt:       c.CompletedAt,
	}
}

func (r record) toJob() *Job {
	return &Job{
		ID:                r.ID,
		UserID:            r.UserID,
		Status:            r.Status,
		ClipIDs:           r.ClipIDs,
		MusicTrackID:      r.MusicTrackID,
		MusicVolume:       r.MusicVolume,
		TransitionType:    r.TransitionType,
		TransitionSeconds: r.TransitionSeconds,
		AspectRatio:       r.AspectRatio,
		OutputPath:        r.OutputPath,
		Error:             r.Error,
		Stats:             r.Stats,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		StartedAt:         r.StartedAt,
		CompletedAt:       r.CompletedAt,
	}
}

// Save writes the job, replacing any previous version.
func (r *DynamoRepository) Save(ctx context.Context, j *Job) error {
	item, err := attributevalue.MarshalMap(toRecord(j))
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", j.ID, err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: jobPK(j.ID)}
	item["SK"] = &types.AttributeValueMemberS{Value: skMeta}
	item["expiresAt"] = &types.AttributeValueMemberN{
		Value: strconv.FormatInt(time.Now().Add(RecordTTL).Unix(), 10),
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s: %w", jobPK(j.ID), err)
	}
	return nil
}

// FindByID reads a job. Returns ErrJobNotFound if the item does not exist.
func (r *DynamoRepository) FindByID(ctx context.Context, jobID string) (*Job, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: jobPK(jobID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem PK=%s: %w", jobPK(jobID), err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}

	var rec record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}
	rec.ID = jobID
	return rec.toJob(), nil
}
