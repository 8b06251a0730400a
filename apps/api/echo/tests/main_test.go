package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/careercompass/apps/api/echo"
	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/enrollment"
	"github.com/trezcool/careercompass/core/lecture"
	"github.com/trezcool/careercompass/core/progress"
	"github.com/trezcool/careercompass/core/user"
	emailsvc "github.com/trezcool/careercompass/services/email"
	inmemdb "github.com/trezcool/careercompass/storage/database/inmem"
	testutil "github.com/trezcool/careercompass/tests"
)

var (
	conf        *core.Config
	db          *inmemdb.DB
	usrRepo     user.Repository
	courseRepo  course.Repository
	enrRepo     enrollment.Repository
	progRepo    progress.Repository
	lectureRepo lecture.Repository
	gateway     *testutil.Gateway
	logger      *testutil.Logger

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

// setup wires a fresh server on an empty in-memory database.
func setup(t *testing.T) *echoapi.Server {
	t.Helper()

	conf = testutil.NewConfig()
	logger = new(testutil.Logger)
	emailsvc.ClearSentMessages()

	// set up DB & repos
	db = inmemdb.NewDB()
	usrRepo = inmemdb.NewUserRepository(db)
	courseRepo = inmemdb.NewCourseRepository(db)
	enrRepo = inmemdb.NewEnrollmentRepository(db)
	progRepo = inmemdb.NewProgressRepository(db)
	lectureRepo = inmemdb.NewLectureRepository(db)

	// set up services
	gateway = testutil.NewGateway()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	courseSvc := course.NewService(courseRepo)
	engine := enrollment.NewEngine(enrollment.EngineDeps{
		Repo:    enrRepo,
		Courses: courseSvc,
		Users:   usrSvc,
		Gateway: gateway,
		MailSvc: mailSvc,
		Logger:  logger,
		Conf:    conf,
	})
	aggregator := progress.NewAggregator(progress.AggregatorDeps{
		Repo:        progRepo,
		Catalog:     courseSvc,
		Enrollments: engine,
		Users:       usrSvc,
		MailSvc:     mailSvc,
		Logger:      logger,
	})

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)

	// set up server
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
		UserSvc:        usrSvc,
		CourseSvc:      courseSvc,
		Enrollments:    engine,
		Progress:       aggregator,
		LectureSvc:     lecture.NewService(lectureRepo),
	})
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	header   http.Header
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// serve runs the test request against the server.
func serve(app http.Handler, tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	for k, vals := range tt.header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	app.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()

	token, err := echoapi.GenerateToken(echoapi.GetUserClaims(usr, conf), conf.SecretKey)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()

	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func marshalList(t *testing.T, objs ...interface{}) []byte {
	t.Helper()

	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marshalList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()

	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()

	assert.Equal(t, tt.wantCode, rec.Code, "code; body %s", rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if assert.NoError(t, err, "jsonBytesEqual() failed to compare") {
		assert.True(t, ok, "data = %s; wantData %s", rec.Body.String(), string(tt.wantData))
	}
}

// runHTTPTests runs the table with the method & path defaults applied.
func runHTTPTests(t *testing.T, app http.Handler, method, path string, tests []httpTest) {
	t.Helper()

	for _, tt := range tests {
		if tt.method == "" {
			tt.method = method
		}
		if tt.path == "" {
			tt.path = path
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			rec := serve(app, tt)
			checkCodeAndData(t, tt, rec)
		})
	}
}
