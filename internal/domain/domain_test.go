package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2021-10-11", "2021-10-11", true},
		{" 2021-10-11 ", "2021-10-11", true},
		{"2021-10-11T23:59:59", "2021-10-11", true},
		{"2021-10-11T10:00:00+03:00", "2021-10-11", true},
		{"11.10.2021", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDate(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
		})
	}
}

func TestDate_JSON(t *testing.T) {
	r := Reservation{
		ReservationUID: "r1",
		Status:         StatusRented,
		StartDate:      NewDate(2021, time.October, 1),
		TillDate:       NewDate(2021, time.October, 11),
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tillDate":"2021-10-11"`)

	var decoded Reservation
	require.NoError(t, json.Unmarshal([]byte(`{"reservationUid":"r1","startDate":null,"tillDate":"2021-10-11"}`), &decoded))
	assert.True(t, decoded.StartDate.IsZero())
	assert.True(t, decoded.TillDate.Equal(NewDate(2021, time.October, 11)))

	assert.Error(t, json.Unmarshal([]byte(`{"tillDate":20211011}`), &decoded))
}

func TestIsExpired(t *testing.T) {
	due := NewDate(2021, time.October, 11)

	assert.False(t, IsExpired(due, due), "return on the due date is on time")
	assert.False(t, IsExpired(due, due.AddDays(-1)))
	assert.True(t, IsExpired(due, due.AddDays(1)))
}

func TestDateOf_IgnoresTimeOfDay(t *testing.T) {
	morning := DateOf(time.Date(2021, time.October, 11, 1, 0, 0, 0, time.UTC))
	evening := DateOf(time.Date(2021, time.October, 11, 23, 0, 0, 0, time.UTC))
	assert.True(t, morning.Equal(evening))
}

func TestReturnDelta(t *testing.T) {
	tests := []struct {
		name     string
		expired  bool
		reported Condition
		recorded Condition
		want     int
	}{
		{"on time, same condition", false, ConditionGood, ConditionGood, RewardDelta},
		{"on time, worse condition", false, ConditionBad, ConditionGood, PenaltyDelta},
		{"expired, same condition", true, ConditionGood, ConditionGood, PenaltyDelta},
		{"expired, worse condition", true, ConditionBad, ConditionGood, PenaltyDelta},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReturnDelta(tt.expired, tt.reported, tt.recorded))
		})
	}
}

func TestLimitExceeded(t *testing.T) {
	assert.False(t, LimitExceeded(0, 0), "new reader gets one book")
	assert.True(t, LimitExceeded(1, 0))
	assert.False(t, LimitExceeded(4, 5))
	assert.True(t, LimitExceeded(5, 5))
	assert.Equal(t, 1, EffectiveStars(0))
	assert.Equal(t, 7, EffectiveStars(7))
}

func TestParseCondition(t *testing.T) {
	c, err := ParseCondition("good")
	require.NoError(t, err)
	assert.Equal(t, ConditionGood, c)

	_, err = ParseCondition("SHINY")
	assert.Error(t, err)
}

func TestErrors_Classification(t *testing.T) {
	unreachable := fmt.Errorf("step: %w", &UnreachableError{Service: ServiceRating, Op: "GetRating", Err: errors.New("dial tcp")})
	rejected := &RemoteRejectedError{Service: ServiceReservation, Op: "CreateReservation", Status: 409, Body: "conflict"}

	assert.True(t, IsUnreachable(unreachable))
	assert.False(t, IsUnreachable(rejected))

	got, ok := AsRemoteRejected(fmt.Errorf("wrapped: %w", rejected))
	require.True(t, ok)
	assert.Equal(t, 409, got.Status)

	aborted := &SagaAbortedError{Step: "mark_rented", Cause: unreachable}
	assert.ErrorIs(t, aborted, ErrSagaAborted)
	assert.True(t, IsUnreachable(aborted))
	assert.Contains(t, aborted.Error(), "mark_rented")
}

func TestCorrection_Payloads(t *testing.T) {
	lib := LibraryAvailabilityCorrection{BookUID: "b1", LibraryUID: "l1"}
	data, err := json.Marshal(lib)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bookUid":"b1","libraryUid":"l1"}`, string(data))
	assert.Equal(t, KindLibraryAvailability, lib.Kind())
	assert.Equal(t, "l1/b1", lib.Key())

	rating := RatingCorrection{Username: "alice", Delta: -10}
	data, err = json.Marshal(rating)
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"alice","delta":-10}`, string(data))
	assert.Equal(t, "alice", rating.Key())
}
