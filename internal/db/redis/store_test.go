package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/caseworks/casedex/internal/db"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestContainsIgnoreCase(t *testing.T) {
	tests := []struct {
		s, sub string
		want   bool
	}{
		{"Index Already Exists", "index already exists", true},
		{"UNKNOWN INDEX NAME", "unknown index name", true},
		{"hello world", "world", true},
		{"short", "longer than input", false},
		{"exact", "exact", true},
		{"", "", true},
		{"notempty", "", true},
	}
	for _, tc := range tests {
		got := containsIgnoreCase(tc.s, tc.sub)
		if got != tc.want {
			t.Errorf("containsIgnoreCase(%q, %q) = %v, want %v", tc.s, tc.sub, got, tc.want)
		}
	}
}

// --- hash.go tests ---

func TestHSet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET" && cmd[1] == "mykey"
		})).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	err := s.HSet(context.Background(), "mykey", map[string]string{"f1": "v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHSet_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	err := s.HSet(context.Background(), "mykey", map[string]string{"f": "v"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

func TestHSetMulti_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(1)),
			mock.Result(mock.RedisInt64(1)),
		})

	s := NewStoreForTest(c)
	err := s.HSetMulti(context.Background(), []db.HashSetItem{
		{Key: "k1", Fields: map[string]string{"f": "v"}},
		{Key: "k2", Fields: map[string]string{"f": "v"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHSetMulti_Empty(t *testing.T) {
	s := NewStoreForTest(nil)
	if err := s.HSetMulti(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDel_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "mykey")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	if err := s.Del(context.Background(), "mykey"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScan_SinglePage(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisString("0"),
			mock.RedisArray(mock.RedisString("k1"), mock.RedisString("k2")),
		)))

	s := NewStoreForTest(c)
	keys, err := s.Scan(context.Background(), "casedex:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 keys, got %d", len(keys))
	}
}

// --- kv.go tests ---

func TestGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "mykey")).
		Return(mock.Result(mock.RedisString("value")))

	s := NewStoreForTest(c)
	data, err := s.Get(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "value" {
		t.Errorf("expected value, got %s", data)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "mykey")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForTest(c)
	_, err := s.Get(context.Background(), "mykey")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestSet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "mykey", "v")).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	if err := s.Set(context.Background(), "mykey", []byte("v")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetWithTTL_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SET" && cmd[1] == "mykey"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	err := s.SetWithTTL(context.Background(), "mykey", []byte("v"), time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- index.go tests ---

func TestCreateIndex_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	idx := &db.IndexDefinition{
		Name:     "casedex:chunk_idx",
		Prefixes: []string{"casedex:chunk:"},
		Fields: []db.IndexField{
			{Name: "chunk_text", Type: db.IndexFieldText, TextNoStem: true},
		},
	}
	if err := s.CreateIndex(context.Background(), idx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreForTest(c)
	idx := &db.IndexDefinition{
		Name:   "test:idx",
		Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldTag}},
	}
	err := s.CreateIndex(context.Background(), idx)
	if !errors.Is(err, db.ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
}

func TestIndexExists_True(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "test:idx")).
		Return(mock.Result(mock.RedisArray(mock.RedisString("index_name"), mock.RedisString("test:idx"))))

	s := NewStoreForTest(c)
	exists, err := s.IndexExists(context.Background(), "test:idx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected true")
	}
}

func TestIndexExists_False(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "test:idx")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	s := NewStoreForTest(c)
	exists, err := s.IndexExists(context.Background(), "test:idx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("expected false")
	}
}

func TestBuildFieldArgs_TextOptions(t *testing.T) {
	args, err := buildFieldArgs(&db.IndexField{
		Name: "chunk_text", Type: db.IndexFieldText, TextNoStem: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	joined := strings.Join(args, " ")
	if joined != "chunk_text TEXT NOSTEM" {
		t.Errorf("unexpected args: %q", joined)
	}

	args, err = buildFieldArgs(&db.IndexField{
		Name: "chunk_text_en", Type: db.IndexFieldText, TextWeight: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	joined = strings.Join(args, " ")
	if joined != "chunk_text_en TEXT WEIGHT 2" {
		t.Errorf("unexpected args: %q", joined)
	}
}

func TestBuildFieldArgs_VectorHNSW(t *testing.T) {
	args, err := buildFieldArgs(&db.IndexField{
		Name: "embedding", Type: db.IndexFieldVector,
		VectorAlgo: db.VectorHNSW, VectorDim: 1024,
		VectorDistance: db.DistanceCosine,
		VectorM:        16, VectorEFConstruct: 200,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	joined := strings.Join(args, " ")
	want := "embedding VECTOR HNSW 10 TYPE FLOAT32 DIM 1024 DISTANCE_METRIC COSINE M 16 EF_CONSTRUCTION 200"
	if joined != want {
		t.Errorf("args = %q, want %q", joined, want)
	}
}

func TestBuildCreateArgs_Validation(t *testing.T) {
	_, err := buildCreateArgs(&db.IndexDefinition{Name: "", Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldTag}}})
	if err == nil {
		t.Error("expected error for empty name")
	}

	_, err = buildCreateArgs(&db.IndexDefinition{Name: "test"})
	if err == nil {
		t.Error("expected error for empty fields")
	}
}

// --- search.go tests ---

func TestSearchKNN_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1), // total
			mock.RedisString("casedex:chunk:abc_p1_c0"),
			mock.RedisArray(
				mock.RedisString("__embedding_score"),
				mock.RedisString("0.1"), // distance 0.1 -> similarity 0.9
				mock.RedisString("chunk_text"),
				mock.RedisString("hello"),
			),
		)))

	s := NewStoreForTest(c)
	result, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName: "idx",
		Vector:    []float32{0.1, 0.2},
		K:         10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("expected total 1, got %d", result.Total)
	}
	if result.Entries[0].Key != "casedex:chunk:abc_p1_c0" {
		t.Errorf("unexpected key %s", result.Entries[0].Key)
	}
	// cosine distance 0.1 maps to similarity 0.9
	if result.Entries[0].Score < 0.89 || result.Entries[0].Score > 0.91 {
		t.Errorf("expected score ~0.9, got %f", result.Entries[0].Score)
	}
}

func TestSearchKNN_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	s := NewStoreForTest(c)
	result, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName: "idx",
		Vector:    []float32{0.1},
		K:         10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 0 {
		t.Errorf("expected 0 entries, got %d", len(result.Entries))
	}
}

func TestSearchKNN_Validation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	_, err := s.SearchKNN(ctx, &db.KNNQuery{Vector: []float32{0.1}, K: 10})
	if err == nil {
		t.Error("expected error for empty index name")
	}

	_, err = s.SearchKNN(ctx, &db.KNNQuery{IndexName: "idx", K: 10})
	if err == nil {
		t.Error("expected error for empty vector")
	}

	_, err = s.SearchKNN(ctx, &db.KNNQuery{IndexName: "idx", Vector: []float32{0.1}, K: 0})
	if err == nil {
		t.Error("expected error for k=0")
	}
}

func TestSearchText_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[2] == "@chunk_text:(brain injury)"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("casedex:chunk:abc_p1_c0"),
			mock.RedisString("0.85"),
			mock.RedisArray(
				mock.RedisString("chunk_text"),
				mock.RedisString("brain injury assessment"),
			),
		)))

	s := NewStoreForTest(c)
	result, err := s.SearchText(context.Background(), &db.TextQuery{
		IndexName: "idx",
		Field:     "chunk_text",
		Terms:     []string{"brain", "injury"},
		Mode:      db.TextExact,
		TopK:      10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("expected total 1, got %d", result.Total)
	}
	if result.Entries[0].Score < 0.84 || result.Entries[0].Score > 0.86 {
		t.Errorf("expected score ~0.85, got %f", result.Entries[0].Score)
	}
}

func TestSearchText_MissingIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisError("test: no such index")))

	s := NewStoreForTest(c)
	_, err := s.SearchText(context.Background(), &db.TextQuery{
		IndexName: "missing:idx",
		Field:     "chunk_text",
		Terms:     []string{"care"},
		Mode:      db.TextExact,
		TopK:      10,
	})
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestSearchText_Validation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	_, err := s.SearchText(ctx, &db.TextQuery{Field: "f", Terms: []string{"t"}, TopK: 10})
	if err == nil {
		t.Error("expected error for empty index name")
	}

	_, err = s.SearchText(ctx, &db.TextQuery{IndexName: "idx", Terms: []string{"t"}, TopK: 10})
	if err == nil {
		t.Error("expected error for empty field")
	}

	_, err = s.SearchText(ctx, &db.TextQuery{IndexName: "idx", Field: "f", TopK: 10})
	if err == nil {
		t.Error("expected error for no terms")
	}

	_, err = s.SearchText(ctx, &db.TextQuery{IndexName: "idx", Field: "f", Terms: []string{"t"}, TopK: 0})
	if err == nil {
		t.Error("expected error for topK=0")
	}
}

func TestSearchList_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisString("doc:1"),
			mock.RedisArray(mock.RedisString("f"), mock.RedisString("v1")),
			mock.RedisString("doc:2"),
			mock.RedisArray(mock.RedisString("f"), mock.RedisString("v2")),
		)))

	s := NewStoreForTest(c)
	result, err := s.SearchList(context.Background(), "idx", "*", 0, 10, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 2 {
		t.Fatalf("expected total 2, got %d", result.Total)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(result.Entries))
	}
}

func TestSearchCount_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(42))))

	s := NewStoreForTest(c)
	count, err := s.SearchCount(context.Background(), "idx", "*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 42 {
		t.Errorf("expected 42, got %d", count)
	}
}

// --- Query building tests ---

func TestBuildTextClause_Modes(t *testing.T) {
	tests := []struct {
		name string
		q    db.TextQuery
		want string
	}{
		{
			name: "exact",
			q:    db.TextQuery{Field: "chunk_text", Terms: []string{"brain", "injury"}, Mode: db.TextExact},
			want: "@chunk_text:(brain injury)",
		},
		{
			name: "phrase",
			q:    db.TextQuery{Field: "chunk_text", Terms: []string{"14", "March", "2022"}, Mode: db.TextPhrase},
			want: `@chunk_text:"14 March 2022"`,
		},
		{
			name: "fuzzy_distance_1",
			q:    db.TextQuery{Field: "chunk_text", Terms: []string{"nurse"}, Mode: db.TextFuzzy, FuzzyDistance: 1},
			want: "@chunk_text:(%nurse%)",
		},
		{
			name: "fuzzy_distance_2",
			q:    db.TextQuery{Field: "chunk_text", Terms: []string{"physiotherapy"}, Mode: db.TextFuzzy, FuzzyDistance: 2},
			want: "@chunk_text:(%%physiotherapy%%)",
		},
		{
			name: "fuzzy_default_distance",
			q:    db.TextQuery{Field: "chunk_text", Terms: []string{"nurse"}, Mode: db.TextFuzzy},
			want: "@chunk_text:(%nurse%)",
		},
		{
			name: "wildcard",
			q:    db.TextQuery{Field: "chunk_text", Terms: []string{"neuro"}, Mode: db.TextWildcard},
			want: "@chunk_text:(*neuro*)",
		},
		{
			name: "wildcard_multi",
			q:    db.TextQuery{Field: "chunk_text", Terms: []string{"care", "plan"}, Mode: db.TextWildcard},
			want: "@chunk_text:(*care* *plan*)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildTextClause(&tt.q)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("clause = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildTextClause_FuzzyDistanceClamped(t *testing.T) {
	got, err := buildTextClause(&db.TextQuery{
		Field: "f", Terms: []string{"term"}, Mode: db.TextFuzzy, FuzzyDistance: 9,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "@f:(%%%term%%%)" {
		t.Errorf("clause = %q, want distance capped at 3", got)
	}
}

func TestBuildTextClause_NoTerms(t *testing.T) {
	_, err := buildTextClause(&db.TextQuery{Field: "f", Mode: db.TextExact})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestBuildTagFilters(t *testing.T) {
	got := buildTagFilters([]db.TagFilter{
		{Field: "case_ref", Value: "CR-1042"},
		{Field: "correspondence_type", Value: "care plan"},
	})
	want := `@case_ref:{CR\-1042} @correspondence_type:{care\ plan}`
	if got != want {
		t.Errorf("filters = %q, want %q", got, want)
	}
}

func TestSanitizeTerm(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Nurse", "nurse"},
		{"brain-injury", "braininjury"},
		{"O'Neill", "oneill"},
		{"14/03/2022", "14032022"},
		{"***", ""},
	}
	for _, tc := range tests {
		if got := sanitizeTerm(tc.in); got != tc.want {
			t.Errorf("sanitizeTerm(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEscapeQuery(t *testing.T) {
	input := `hello "world" @user {tag}`
	escaped := escapeQuery(input)
	expected := `hello \"world\" \@user \{tag\}`
	if escaped != expected {
		t.Errorf("expected %q, got %q", expected, escaped)
	}
}

func TestVectorToBytes(t *testing.T) {
	v := []float32{1.0, 2.0}
	b := vectorToBytes(v)
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
}

// --- stream.go tests ---

func TestStreamAdd_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "XADD" && cmd[1] == "casedex:ingest" && cmd[2] == "*"
		})).
		Return(mock.Result(mock.RedisString("1700000000000-0")))

	s := NewStoreForTest(c)
	id, err := s.StreamAdd(context.Background(), "casedex:ingest", map[string]string{
		"storage_uri": "s3://bucket/a.pdf",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "1700000000000-0" {
		t.Errorf("unexpected id %s", id)
	}
}

func TestStreamEnsureGroup_Busy(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "XGROUP" && cmd[1] == "CREATE"
		})).
		Return(mock.Result(mock.RedisError("BUSYGROUP Consumer Group name already exists")))

	s := NewStoreForTest(c)
	if err := s.StreamEnsureGroup(context.Background(), "casedex:ingest", "workers"); err != nil {
		t.Fatalf("existing group should not be an error, got %v", err)
	}
}

func TestStreamReadGroup_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "XREADGROUP" && cmd[1] == "GROUP"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisArray(
				mock.RedisString("casedex:ingest"),
				mock.RedisArray(
					mock.RedisArray(
						mock.RedisString("1-0"),
						mock.RedisArray(
							mock.RedisString("storage_uri"),
							mock.RedisString("s3://bucket/a.pdf"),
						),
					),
				),
			),
		)))

	s := NewStoreForTest(c)
	msgs, err := s.StreamReadGroup(context.Background(), "casedex:ingest", "workers", "w1", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ID != "1-0" || msgs[0].Values["storage_uri"] != "s3://bucket/a.pdf" {
		t.Errorf("unexpected message: %+v", msgs[0])
	}
}

func TestStreamReadGroup_Timeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "XREADGROUP"
		})).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForTest(c)
	msgs, err := s.StreamReadGroup(context.Background(), "casedex:ingest", "workers", "w1", 10, time.Second)
	if err != nil {
		t.Fatalf("block timeout should not be an error, got %v", err)
	}
	if msgs != nil {
		t.Errorf("expected nil, got %v", msgs)
	}
}

func TestStreamAck_Empty(t *testing.T) {
	s := NewStoreForTest(nil) // client not called
	if err := s.StreamAck(context.Background(), "casedex:ingest", "workers"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStreamAck_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("XACK", "casedex:ingest", "workers", "1-0")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	if err := s.StreamAck(context.Background(), "casedex:ingest", "workers", "1-0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStreamAutoClaim_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "XAUTOCLAIM"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisString("0-0"),
			mock.RedisArray(
				mock.RedisArray(
					mock.RedisString("1-0"),
					mock.RedisArray(
						mock.RedisString("storage_uri"),
						mock.RedisString("s3://bucket/a.pdf"),
					),
				),
			),
			mock.RedisArray(),
		)))

	s := NewStoreForTest(c)
	msgs, err := s.StreamAutoClaim(context.Background(), "casedex:ingest", "workers", "w2", time.Minute, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "1-0" {
		t.Errorf("unexpected messages: %+v", msgs)
	}
}

func TestStreamPending_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "XPENDING"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisArray(
				mock.RedisString("1-0"),
				mock.RedisString("w1"),
				mock.RedisInt64(65000),
				mock.RedisInt64(3),
			),
		)))

	s := NewStoreForTest(c)
	entries, err := s.StreamPending(context.Background(), "casedex:ingest", "workers", "1-0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Deliveries != 3 {
		t.Errorf("deliveries = %d, want 3", entries[0].Deliveries)
	}
	if entries[0].Idle != 65*time.Second {
		t.Errorf("idle = %v, want 65s", entries[0].Idle)
	}
}

// --- helpers ---

// isDBError is a test helper for checking wrapped db.Error.
func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}
