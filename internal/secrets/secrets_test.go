package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSSM struct {
	mock.Mock
}

func (m *mockSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*ssm.GetParameterOutput)
	return out, args.Error(1)
}

func named(name string) interface{} {
	return mock.MatchedBy(func(in *ssm.GetParameterInput) bool {
		return aws.ToString(in.Name) == name && aws.ToBool(in.WithDecryption)
	})
}

func env(vals map[string]string) Option {
	return WithLookupEnv(func(k string) (string, bool) {
		v, ok := vals[k]
		return v, ok
	})
}

func TestResolver_ParameterName(t *testing.T) {
	r := NewResolver(nil, "/echoes/", "prod", nil)
	assert.Equal(t, "/echoes/prod/storage/access_key_id", r.ParameterName("storage/access_key_id"))
	assert.Equal(t, "/echoes/prod/x", r.ParameterName("/x"))
}

func TestResolver_LookupFromSSM(t *testing.T) {
	m := new(mockSSM)
	m.On("GetParameter", mock.Anything, named("/echoes/prod/storage/access_key_id")).
		Return(&ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String("AKIA123")}}, nil).
		Once()

	r := NewResolver(m, "/echoes", "prod", nil, env(map[string]string{"STORAGE_ACCESS_KEY_ID": "from-env"}))
	v, err := r.Lookup(context.Background(), "storage/access_key_id", "STORAGE_ACCESS_KEY_ID")
	require.NoError(t, err)
	assert.Equal(t, "AKIA123", v)
	m.AssertExpectations(t)
}

func TestResolver_FallsBackToEnv(t *testing.T) {
	tests := []struct {
		name   string
		ssmErr error
	}{
		{"parameter missing", &types.ParameterNotFound{Message: aws.String("nope")}},
		{"access denied", errors.New("AccessDeniedException")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(mockSSM)
			m.On("GetParameter", mock.Anything, mock.Anything).Return(nil, tt.ssmErr).Once()

			r := NewResolver(m, "/echoes", "dev", nil, env(map[string]string{"STORAGE_SECRET_ACCESS_KEY": "s3cr3t"}))
			v, err := r.Lookup(context.Background(), "storage/secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
			require.NoError(t, err)
			assert.Equal(t, "s3cr3t", v)
			m.AssertExpectations(t)
		})
	}
}

func TestResolver_NotFound(t *testing.T) {
	m := new(mockSSM)
	m.On("GetParameter", mock.Anything, mock.Anything).
		Return(nil, &types.ParameterNotFound{}).Once()

	r := NewResolver(m, "/echoes", "prod", nil, env(map[string]string{"EMPTY": ""}))
	_, err := r.Lookup(context.Background(), "storage/access_key_id", "EMPTY")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSecretNotFound)
	assert.Contains(t, err.Error(), "storage/access_key_id")
}

func TestResolver_WithoutClient(t *testing.T) {
	r := NewResolver(nil, "/echoes", "prod", nil, env(map[string]string{"TOKEN": "abc"}))

	v, err := r.Lookup(context.Background(), "token", "TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	_, err = r.Lookup(context.Background(), "token", "")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}
