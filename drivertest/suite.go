package drivertest

import (
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/satishbabariya/dal-go/dal"
	"github.com/satishbabariya/dal-go/driver"
	"github.com/satishbabariya/dal-go/expr"
)

// suiteTables is every table a suite test may define, dropped before each
// test so runs are independent even against a shared server database.
var suiteTables = []string{"posts", "users", "inventory"}

// Suite runs the behavioral conformance tests against one driver. Driver
// packages embed it in a plain test:
//
//	func TestConformance(t *testing.T) {
//		cfg, err := drivertest.LoadConfig()
//		require.NoError(t, err)
//		if cfg.MySQLDSN == "" {
//			t.Skip("DAL_MYSQL_DSN not provided")
//		}
//		suite.Run(t, &drivertest.Suite{Driver: "mysql", DSN: cfg.MySQLDSN, Options: cfg.Options()})
//	}
type Suite struct {
	suite.Suite

	Driver  string
	DSN     string
	Options []dal.Option

	fs      afero.Fs
	scratch string
}

// SetupSuite provisions a scratch database file for sqlite when no DSN
// was configured; server backends always need an explicit one.
func (s *Suite) SetupSuite() {
	s.fs = afero.NewOsFs()
	if s.DSN == "" && s.Driver == "sqlite" {
		dir, err := afero.TempDir(s.fs, "", "dal-conformance")
		require.NoError(s.T(), err)
		s.scratch = dir
		s.DSN = filepath.Join(dir, "conformance.db")
	}
	require.NotEmpty(s.T(), s.DSN, "no DSN for driver %s", s.Driver)
}

func (s *Suite) TearDownSuite() {
	if s.scratch != "" {
		s.fs.RemoveAll(s.scratch)
	}
}

// SetupTest drops every table the tests define. The drops are best
// effort; most of the tables will not exist.
func (s *Suite) SetupTest() {
	ctx := context.Background()
	conn, err := driver.Open(ctx, s.Driver, s.DSN)
	require.NoError(s.T(), err)
	defer conn.Close()
	for _, table := range suiteTables {
		conn.DropTable(ctx, table)
	}
}

func (s *Suite) open() *dal.DB {
	db, err := dal.Open(context.Background(), s.Driver, s.DSN, s.Options...)
	require.NoError(s.T(), err)
	s.T().Cleanup(func() { db.Close() })
	return db
}

func (s *Suite) defineUsers(db *dal.DB) *dal.Table {
	users, err := db.Define("users",
		dal.Integer("id", dal.Key()),
		dal.Text("first_name", dal.NotNull()),
		dal.Text("last_name", dal.NotNull()),
		dal.Integer("age", dal.NotNull(), dal.Default(18)),
	)
	require.NoError(s.T(), err)
	return users
}

func (s *Suite) seedUsers(db *dal.DB) *dal.Table {
	users := s.defineUsers(db)
	ctx := context.Background()
	require.NoError(s.T(), db.Migrate(ctx))
	for _, values := range []dal.Values{
		{"first_name": "John", "last_name": "Doe", "age": 23},
		{"first_name": "Jane", "last_name": "Doe", "age": 25},
		{"first_name": "Bob", "last_name": "Smith", "age": 39},
		{"first_name": "Alice", "last_name": "Jones"},
	} {
		_, err := users.Insert(ctx, values)
		require.NoError(s.T(), err)
	}
	return users
}

func (s *Suite) TestMigrateAndIdentity() {
	db := s.open()
	users := s.defineUsers(db)
	ctx := context.Background()

	require.NoError(s.T(), db.Migrate(ctx))
	require.NoError(s.T(), db.Migrate(ctx), "migrate must be repeatable")

	for want := int64(1); want <= 3; want++ {
		id, err := users.Insert(ctx, dal.Values{"first_name": "U", "last_name": "Ser", "age": 1})
		require.NoError(s.T(), err)
		assert.Equal(s.T(), want, id, "identities assign sequentially from 1")
	}
}

func (s *Suite) TestGetRoundtrip() {
	db := s.open()
	users := s.seedUsers(db)
	ctx := context.Background()

	row, err := users.Get(ctx, int64(1))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), row.MustGet("id"))
	assert.Equal(s.T(), "John", row.MustGet("first_name"))
	assert.Equal(s.T(), int64(23), row.MustGet("age"))

	_, err = users.Get(ctx, int64(99))
	assert.True(s.T(), dal.IsNotFound(err))

	alice, err := users.Where(users.C("first_name").Eq("Alice")).One(ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(18), alice.MustGet("age"), "the column default fills omitted ages")
}

func (s *Suite) TestAggregates() {
	db := s.open()
	users := s.seedUsers(db)
	ctx := context.Background()
	age := users.C("age")

	avg, err := users.All().Value(ctx, age.Avg())
	require.NoError(s.T(), err)
	assert.InDelta(s.T(), 26.25, avg.(float64), 1e-9)

	sum, err := users.All().Value(ctx, age.Sum())
	require.NoError(s.T(), err)
	assert.InDelta(s.T(), 105, sum.(float64), 1e-9)

	empty := users.Where(age.Gt(1000))
	sum, err = empty.Value(ctx, age.Sum())
	require.NoError(s.T(), err)
	assert.InDelta(s.T(), 0, sum.(float64), 1e-9, "a sum over nothing is 0")

	lo, err := empty.Value(ctx, age.Min())
	require.NoError(s.T(), err)
	assert.Nil(s.T(), lo)

	n, err := users.Where(users.C("last_name").Eq("Doe")).Count(ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2), n)
}

func (s *Suite) TestDistinctOrdered() {
	db := s.open()
	users := s.seedUsers(db)

	rows, err := users.All().
		Project(users.C("last_name")).
		Distinct().
		OrderBy(users.C("last_name").Asc()).
		All(context.Background())
	require.NoError(s.T(), err)

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.MustGet("last_name").(string))
	}
	assert.Equal(s.T(), []string{"Doe", "Jones", "Smith"}, names)
}

func (s *Suite) TestPredicates() {
	db := s.open()
	users := s.seedUsers(db)
	ctx := context.Background()
	first := users.C("first_name")
	age := users.C("age")

	cases := []struct {
		name string
		pred expr.Expr
		want int64
	}{
		{"ge", age.Ge(23), 3},
		{"between", age.Between(18, 25), 3},
		{"like", first.Like("J%"), 2},
		{"glob", first.Glob("J?hn"), 1},
		{"starts with", first.StartsWith("Jo"), 1},
		{"contains", first.Contains("li"), 1},
		{"not", expr.Not(first.Eq("John")), 3},
		{"or", expr.Or(first.Eq("John"), first.Eq("Bob")), 2},
		{"arith", age.Add(10).Ge(35), 2},
		{"floordiv", expr.Eq(expr.FloorDiv(age, 10), 2), 2},
	}
	for _, tc := range cases {
		n, err := users.Where(tc.pred).Count(ctx)
		require.NoError(s.T(), err, tc.name)
		assert.Equal(s.T(), tc.want, n, tc.name)
	}
}

func (s *Suite) TestSlicing() {
	db := s.open()
	users := s.seedUsers(db)
	ctx := context.Background()
	john := users.Where(users.C("first_name").Eq("John"))
	first := users.C("first_name")

	cases := []struct {
		name string
		e    expr.Expr
		want any
	}{
		{"at", first.At(0), "J"},
		{"at negative", first.At(-1), "n"},
		{"slice", first.Slice(1, 3), "oh"},
		{"slice negative", first.Slice(-3, -1), "oh"},
		{"slice from", first.SliceFrom(-2), "hn"},
		{"slice to", first.SliceTo(-1), "Joh"},
		{"integer slice", users.C("age").Slice(0, 1), int64(2)},
		{"length", first.Length(), int64(4)},
	}
	for _, tc := range cases {
		v, err := john.Value(ctx, tc.e)
		require.NoError(s.T(), err, tc.name)
		assert.Equal(s.T(), tc.want, v, tc.name)
	}
}

func (s *Suite) TestUpdateAndDelete() {
	db := s.open()
	users := s.seedUsers(db)
	ctx := context.Background()

	n, err := users.Where(users.C("last_name").Eq("Doe")).
		Update(ctx, dal.Values{"age": 30})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2), n)

	row, err := users.Get(ctx, int64(1))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(30), row.MustGet("age"))

	updated, err := row.Update(ctx, dal.Values{"age": 31})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(31), updated.MustGet("age"))

	require.NoError(s.T(), updated.Delete(ctx))
	_, err = users.Get(ctx, int64(1))
	assert.True(s.T(), dal.IsNotFound(err))

	n, err = users.All().Delete(ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(3), n)
}

func (s *Suite) TestTypesRoundtrip() {
	db := s.open()
	inventory, err := db.Define("inventory",
		dal.Integer("id", dal.Key()),
		dal.Text("name", dal.NotNull()),
		dal.Blob("thumb"),
		dal.Bool("archived", dal.NotNull(), dal.Default(false)),
		dal.Float("weight"),
		dal.Timestamp("added"),
	)
	require.NoError(s.T(), err)
	ctx := context.Background()
	require.NoError(s.T(), db.Migrate(ctx))

	added := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	_, err = inventory.Insert(ctx, dal.Values{
		"name":   "anvil",
		"thumb":  []byte{0x89, 0x50, 0x4e, 0x47},
		"weight": 120.5,
		"added":  added,
	})
	require.NoError(s.T(), err)

	row, err := inventory.Get(ctx, int64(1))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "anvil", row.MustGet("name"))
	assert.Equal(s.T(), []byte{0x89, 0x50, 0x4e, 0x47}, row.MustGet("thumb"))
	assert.Equal(s.T(), false, row.MustGet("archived"), "the declared default applies")
	assert.Equal(s.T(), 120.5, row.MustGet("weight"))
	got, ok := row.MustGet("added").(time.Time)
	require.True(s.T(), ok)
	assert.True(s.T(), got.Equal(added), "want %v, got %v", added, got)
}

func (s *Suite) TestTransactions() {
	db := s.open()
	if !db.Capabilities().Has(driver.CapTransactions) {
		s.T().Skipf("%s: backend has no transactions", s.Driver)
	}
	users := s.seedUsers(db)
	ctx := context.Background()

	err := db.Transaction(ctx, func(ctx context.Context) error {
		_, err := users.Insert(ctx, dal.Values{"first_name": "Eve", "last_name": "Adams"})
		return err
	})
	require.NoError(s.T(), err)

	boom := assert.AnError
	err = db.Transaction(ctx, func(ctx context.Context) error {
		if _, err := users.Insert(ctx, dal.Values{"first_name": "Mallory", "last_name": "Adams"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(s.T(), err, boom)

	n, err := users.Where(users.C("last_name").Eq("Adams")).Count(ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), n, "the rolled-back insert must not persist")
}

func (s *Suite) TestReferences() {
	db := s.open()
	users := s.seedUsers(db)
	posts, err := db.Define("posts",
		dal.Integer("id", dal.Key()),
		dal.Reference("author", users),
		dal.Text("title", dal.NotNull()),
	)
	require.NoError(s.T(), err)
	ctx := context.Background()
	require.NoError(s.T(), db.Migrate(ctx))

	john, err := users.Get(ctx, int64(1))
	require.NoError(s.T(), err)
	jane, err := users.Get(ctx, int64(2))
	require.NoError(s.T(), err)

	_, err = posts.Insert(ctx, dal.Values{"author": john, "title": "Hello"})
	require.NoError(s.T(), err)
	_, err = posts.Insert(ctx, dal.Values{"author": john, "title": "Again"})
	require.NoError(s.T(), err)

	mine, err := john.Referrers("posts")
	require.NoError(s.T(), err)
	n, err := mine.Count(ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2), n)

	hers, err := jane.Referrers("posts")
	require.NoError(s.T(), err)
	rows, err := hers.All(ctx)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), rows)
}

func (s *Suite) TestConform() {
	ctx := context.Background()

	gen1 := s.open()
	narrow, err := gen1.Define("users",
		dal.Integer("id", dal.Key()),
		dal.Text("name", dal.NotNull()),
		dal.Text("nickname"),
	)
	require.NoError(s.T(), err)
	require.NoError(s.T(), gen1.Migrate(ctx))
	_, err = narrow.Insert(ctx, dal.Values{"name": "John", "nickname": "Johnny"})
	require.NoError(s.T(), err)
	require.NoError(s.T(), gen1.Close())

	gen2 := s.open()
	wide, err := gen2.Define("users",
		dal.Integer("id", dal.Key()),
		dal.Text("name", dal.NotNull()),
		dal.Integer("visits", dal.NotNull(), dal.Default(0)),
	)
	require.NoError(s.T(), err)

	report, err := gen2.Conform(ctx, dal.DropExtraColumns())
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []dal.ColumnRef{{Table: "users", Column: "visits"}}, report.Added)
	assert.Equal(s.T(), []dal.ColumnRef{{Table: "users", Column: "nickname"}}, report.Dropped)

	row, err := wide.Get(ctx, int64(1))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "John", row.MustGet("name"))
	assert.Equal(s.T(), int64(0), row.MustGet("visits"))

	report, err = gen2.Conform(ctx, dal.DropExtraColumns())
	require.NoError(s.T(), err)
	assert.False(s.T(), report.Changed(), "a second pass finds nothing to do")
}

func (s *Suite) TestErrorTaxonomy() {
	db := s.open()
	users := s.seedUsers(db)
	ctx := context.Background()

	_, err := users.Insert(ctx, dal.Values{"first_name": "X", "last_name": "Y", "hat": 1})
	assert.True(s.T(), dal.IsColumn(err))

	_, err = users.Get(ctx, int64(1), int64(2))
	assert.True(s.T(), dal.IsSchema(err))

	_, err = users.Insert(ctx, dal.Values{"first_name": nil, "last_name": "Null"})
	assert.True(s.T(), dal.IsExecution(err))

	var e *dal.Error
	require.ErrorAs(s.T(), err, &e)
	assert.Equal(s.T(), s.Driver, e.Driver)
}
