package karma

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"serotonyl.ru/karma-bot/internal/common"
	dbpostgres "serotonyl.ru/karma-bot/internal/db/postgres"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	flag.Parse()

	// В коротком режиме контейнер не поднимаем
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("karma_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "не удалось запустить контейнер postgres: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "не удалось остановить контейнер: %v\n", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "не удалось получить строку подключения: %v\n", err)
		os.Exit(1)
	}

	testPool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "не удалось подключиться к тестовой базе: %v\n", err)
		os.Exit(1)
	}
	defer testPool.Close()

	if err := dbpostgres.RunMigrations(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "не удалось применить миграции: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// setupRepo возвращает репозиторий над чистыми таблицами.
func setupRepo(t *testing.T) *Repository {
	if testing.Short() {
		t.Skip("интеграционный тест пропущен в коротком режиме")
	}
	t.Helper()

	_, err := testPool.Exec(context.Background(), `TRUNCATE karma, karma_cache`)
	require.NoError(t, err)

	return NewRepository(testPool)
}

func readCache(t *testing.T, userID string) (total, positive, negative int, found bool) {
	t.Helper()
	err := testPool.QueryRow(context.Background(),
		`SELECT total, positive, negative FROM karma_cache WHERE user_id = $1`, userID,
	).Scan(&total, &positive, &negative)
	if err != nil {
		return 0, 0, 0, false
	}
	return total, positive, negative, true
}

func TestApplyVote_Lifecycle(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	to := "20"

	// Первый голос
	outcome, err := repo.ApplyVote(ctx, &to, "10", "-1001", "-1001/5", "-1001/6", 1, "текст")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	total, positive, negative, found := readCache(t, "20")
	require.True(t, found)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, positive)
	assert.Equal(t, 0, negative)

	// Повтор того же знака — без изменений
	outcome, err = repo.ApplyVote(ctx, &to, "10", "-1001", "-1001/5", "-1001/7", 1, "текст")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)

	total, _, _, _ = readCache(t, "20")
	assert.Equal(t, 1, total)

	// Смена знака: перенос между счётчиками, событие-источник переписано
	outcome, err = repo.ApplyVote(ctx, &to, "10", "-1001", "-1001/5", "-1001/8", -1, "текст")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	total, positive, negative, _ = readCache(t, "20")
	assert.Equal(t, -1, total)
	assert.Equal(t, 0, positive)
	assert.Equal(t, 1, negative)

	rec, err := repo.Get(ctx, &to, "10", "-1001", "-1001/5")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "-1001/8", rec.GivenFrom)
	assert.Equal(t, -1, rec.Value)

	// Старое событие-источник голос больше не находит
	outcome, err = repo.RetractByOrigin(ctx, "-1001/6")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, outcome)
}

func TestApplyVote_DuplicateOrigin(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	to := "20"

	_, err := repo.ApplyVote(ctx, &to, "10", "-1001", "-1001/5", "-1001/6", 1, "")
	require.NoError(t, err)

	// Одно событие-источник — не более одного голоса
	_, err = repo.ApplyVote(ctx, &to, "10", "-1001", "-1001/99", "-1001/6", 1, "")
	assert.ErrorIs(t, err, common.ErrDuplicateOrigin)
}

func TestApplyVote_InvalidValue(t *testing.T) {
	repo := setupRepo(t)
	to := "20"

	_, err := repo.ApplyVote(context.Background(), &to, "10", "-1001", "-1001/5", "-1001/6", 5, "")
	assert.ErrorIs(t, err, common.ErrInvalidValue)
}

func TestRetractByOrigin(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	to := "20"

	_, err := repo.ApplyVote(ctx, &to, "10", "-1001", "-1001/5", "-1001/6", 1, "")
	require.NoError(t, err)

	outcome, err := repo.RetractByOrigin(ctx, "-1001/6")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, outcome)

	// Вклад откачен точно, нулевая строка агрегата остаётся
	total, positive, negative, found := readCache(t, "20")
	require.True(t, found)
	assert.Zero(t, total)
	assert.Zero(t, positive)
	assert.Zero(t, negative)

	rec, err := repo.Get(ctx, &to, "10", "-1001", "-1001/5")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Повторный отзыв — штатный NotFound
	outcome, err = repo.RetractByOrigin(ctx, "-1001/6")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, outcome)
}

func TestAnonymousRecipientRoundTrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	// Скрытый получатель: в домене nil, в БД — пустая строка
	outcome, err := repo.ApplyVote(ctx, nil, "10", "-1001", "-1001/5", "-1001/6", 1, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	rec, err := repo.Get(ctx, nil, "10", "-1001", "-1001/5")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Nil(t, rec.GivenTo)

	// Скрытый получатель не участвует в рейтингах
	top, err := repo.Top(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, top)

	rank, err := repo.RankOf(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, rank)
}

func TestIsVoteEvent(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	to := "20"

	_, err := repo.ApplyVote(ctx, &to, "10", "-1001", "-1001/5", "-1001/6", 1, "")
	require.NoError(t, err)

	isVote, err := repo.IsVoteEvent(ctx, "-1001/6")
	require.NoError(t, err)
	assert.True(t, isVote)

	isVote, err = repo.IsVoteEvent(ctx, "-1001/5")
	require.NoError(t, err)
	assert.False(t, isVote)
}

// seedVotes раздаёт пользователю count голосов заданного знака.
func seedVotes(t *testing.T, repo *Repository, to string, value, count int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < count; i++ {
		target := fmt.Sprintf("-1001/t-%s-%d-%d", to, value, i)
		origin := fmt.Sprintf("-1001/o-%s-%d-%d", to, value, i)
		voter := fmt.Sprintf("9%s%d", to, i)
		_, err := repo.ApplyVote(ctx, &to, voter, "-1001", target, origin, value, "")
		require.NoError(t, err)
	}
}

func TestRankings(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	seedVotes(t, repo, "20", 1, 3) // +3
	seedVotes(t, repo, "30", 1, 1) // +1
	seedVotes(t, repo, "40", -1, 2)
	seedVotes(t, repo, "40", 1, 1) // -1
	seedVotes(t, repo, "50", 1, 1) // +1, ничья с "30"

	top, err := repo.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 4)
	assert.Equal(t, "20", top[0].UserID)
	// Ничья по total решается возрастанием user_id
	assert.Equal(t, "30", top[1].UserID)
	assert.Equal(t, "50", top[2].UserID)
	assert.Equal(t, "40", top[3].UserID)

	bottom, err := repo.Bottom(ctx, 2)
	require.NoError(t, err)
	require.Len(t, bottom, 2)
	assert.Equal(t, "40", bottom[0].UserID)
	assert.Equal(t, -1, bottom[0].Total)

	rank, err := repo.RankOf(ctx, "50")
	require.NoError(t, err)
	assert.Equal(t, 3, rank)

	// Пользователь без кармы не имеет места в рейтинге
	rank, err = repo.RankOf(ctx, "404")
	require.NoError(t, err)
	assert.Zero(t, rank)
}

func TestUserKarma(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	seedVotes(t, repo, "20", 1, 2)
	seedVotes(t, repo, "20", -1, 1)

	agg, err := repo.UserKarma(ctx, "20")
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Equal(t, 1, agg.Total)
	assert.Equal(t, 2, agg.Positive)
	assert.Equal(t, 1, agg.Negative)

	// Отсутствие кармы — это nil, а не нули
	agg, err = repo.UserKarma(ctx, "404")
	require.NoError(t, err)
	assert.Nil(t, agg)
}

func TestEventAggregates(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	to := "20"

	// Три голоса за одно событие, один за другое
	_, err := repo.ApplyVote(ctx, &to, "10", "-1001", "-1001/5", "-1001/o1", 1, "смешная шутка")
	require.NoError(t, err)
	_, err = repo.ApplyVote(ctx, &to, "11", "-1001", "-1001/5", "-1001/o2", 1, "смешная шутка")
	require.NoError(t, err)
	_, err = repo.ApplyVote(ctx, &to, "12", "-1001", "-1001/5", "-1001/o3", -1, "смешная шутка")
	require.NoError(t, err)
	_, err = repo.ApplyVote(ctx, &to, "10", "-1001", "-1001/9", "-1001/o4", -1, "плохая шутка")
	require.NoError(t, err)

	best, err := repo.BestEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, best, 2)
	assert.Equal(t, "-1001/5", best[0].EventID)
	assert.Equal(t, "-1001", best[0].RoomID)
	assert.Equal(t, 1, best[0].Total)
	assert.Equal(t, 2, best[0].Positive)
	assert.Equal(t, 1, best[0].Negative)
	assert.Equal(t, "смешная шутка", best[0].Content)
	require.NotNil(t, best[0].Recipient)
	assert.Equal(t, "20", *best[0].Recipient)

	worst, err := repo.WorstEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, worst, 1)
	assert.Equal(t, "-1001/9", worst[0].EventID)
	assert.Equal(t, -1, worst[0].Total)
}

func TestExportRepository(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	to20, to30 := "20", "30"

	_, err := repo.ApplyVote(ctx, &to20, "10", "-1001", "-1001/5", "-1001/o1", 1, "")
	require.NoError(t, err)
	_, err = repo.ApplyVote(ctx, &to30, "20", "-1001", "-1001/7", "-1001/o2", -1, "")
	require.NoError(t, err)
	_, err = repo.ApplyVote(ctx, &to30, "40", "-1001", "-1001/9", "-1001/o3", 1, "")
	require.NoError(t, err)

	// Полученные и отданные, чужие не попадают
	records, err := repo.Export(ctx, "20")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRecomputeRepository(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	seedVotes(t, repo, "20", 1, 2)
	seedVotes(t, repo, "20", -1, 1)

	// Портим агрегат руками
	_, err := testPool.Exec(ctx, `UPDATE karma_cache SET total = 100 WHERE user_id = '20'`)
	require.NoError(t, err)

	agg, err := repo.Recompute(ctx, "20")
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Equal(t, 1, agg.Total)
	assert.Equal(t, 2, agg.Positive)
	assert.Equal(t, 1, agg.Negative)

	// Без голосов пересчёт убирает строку агрегата
	agg, err = repo.Recompute(ctx, "404")
	require.NoError(t, err)
	assert.Nil(t, agg)
	_, _, _, found := readCache(t, "404")
	assert.False(t, found)
}

func TestAuditRepository(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	seedVotes(t, repo, "20", 1, 2)
	seedVotes(t, repo, "30", -1, 1)

	found, err := repo.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = testPool.Exec(ctx, `UPDATE karma_cache SET positive = 7 WHERE user_id = '30'`)
	require.NoError(t, err)

	found, err = repo.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "30", found[0].UserID)
	assert.Equal(t, 7, found[0].Cached.Positive)
	assert.Equal(t, 0, found[0].Actual.Positive)

	// Строка агрегата без журнала — тоже расхождение
	_, err = testPool.Exec(ctx,
		`INSERT INTO karma_cache (user_id, total, positive, negative) VALUES ('666', 5, 5, 0)`)
	require.NoError(t, err)

	found, err = repo.Audit(ctx)
	require.NoError(t, err)
	assert.Len(t, found, 2)
}
