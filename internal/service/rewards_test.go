package service

import (
	"context"
	"testing"

	"github.com/billix-app/billix/internal/errs"
	"github.com/billix-app/billix/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRewards_Passthrough(t *testing.T) {
	ctx, _ := userCtx(entNow)
	repo := &fakeRewards{
		streak:  model.StreakStatus{CurrentStreak: 3},
		checkIn: model.CheckInResult{Success: true, PointsAwarded: 10},
		news:    []model.NewsItem{{Title: "today"}},
	}
	s := NewRewardsService(repo, zap.NewNop())
	s.now = fixed(entNow)

	st, err := s.Streak(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, st.CurrentStreak)

	res, err := s.CheckIn(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, res.PointsAwarded)

	require.Equal(t, repo.news, s.News(ctx))
}

func TestRewards_NewsFallback(t *testing.T) {
	s := NewRewardsService(&fakeRewards{err: errs.ErrNetwork}, zap.NewNop())
	got := s.News(context.Background())
	require.Equal(t, fallbackNews, got)

	got[0].Title = "mutated"
	require.NotEqual(t, "mutated", fallbackNews[0].Title)

	s = NewRewardsService(&fakeRewards{}, zap.NewNop())
	require.Len(t, s.News(context.Background()), len(fallbackNews))
}

func TestRewards_RequiresSession(t *testing.T) {
	s := NewRewardsService(&fakeRewards{}, zap.NewNop())
	_, err := s.Streak(context.Background())
	require.ErrorIs(t, err, errs.ErrNotAuthenticated)
	_, err = s.CheckIn(context.Background())
	require.ErrorIs(t, err, errs.ErrNotAuthenticated)
}

func TestRewards_Tasks(t *testing.T) {
	ctx, _ := userCtx(entNow)
	repo := &fakeRewards{
		tasks: []model.RewardTask{{ID: "upload_bill", Target: 1, Points: 25}},
		claim: model.ClaimResult{Success: true, PointsAwarded: 25},
	}
	s := NewRewardsService(repo, zap.NewNop())
	s.now = fixed(entNow)

	tasks, err := s.Tasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task, err := s.Progress(ctx, "upload_bill", 1)
	require.NoError(t, err)
	require.Equal(t, 1, task.Progress)
	require.Equal(t, 1, repo.lastAmount)

	_, err = s.Progress(ctx, "upload_bill", 0)
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = s.Claim(ctx, " ")
	require.ErrorIs(t, err, errs.ErrValidation)

	res, err := s.Claim(ctx, "upload_bill")
	require.NoError(t, err)
	require.Equal(t, 25, res.PointsAwarded)

	st, err := s.TouchStreak(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.CurrentStreak)
}
