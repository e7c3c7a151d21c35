package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/biblioteca/pkg/cache"
	"github.com/nao1215/biblioteca/pkg/httpclient"
	"github.com/nao1215/biblioteca/pkg/token"
)

// principalKey はGinコンテキストに認証済みプリンシパルを格納するキー。
const principalKey = "principal"

// outcomeKind はステージ判定結果の種別。
type outcomeKind int

const (
	// outcomeContinue は次のステージへ進むことを示す。
	outcomeContinue outcomeKind = iota
	// outcomeReject はエラーレスポンスで処理を打ち切ることを示す。
	outcomeReject
	// outcomeRespond は本文付きレスポンスで処理を完了することを示す。
	outcomeRespond
)

// Outcome はパイプラインステージの判定結果。
// Continue・Reject・Respondのいずれかで生成する。
type Outcome struct {
	kind        outcomeKind
	status      int
	message     string
	contentType string
	body        []byte
	retryAfter  time.Duration
}

// Continue は次のステージへ進む判定を返す。
func Continue() Outcome {
	return Outcome{kind: outcomeContinue}
}

// Reject はエラーレスポンスで打ち切る判定を返す。
func Reject(status int, message string) Outcome {
	return Outcome{kind: outcomeReject, status: status, message: message}
}

// RejectWithRetryAfter はRetry-Afterヘッダー付きで打ち切る判定を返す。
func RejectWithRetryAfter(status int, message string, retryAfter time.Duration) Outcome {
	return Outcome{kind: outcomeReject, status: status, message: message, retryAfter: retryAfter}
}

// Respond は本文付きレスポンスで完了する判定を返す。
func Respond(status int, contentType string, body []byte) Outcome {
	return Outcome{kind: outcomeRespond, status: status, contentType: contentType, body: body}
}

// requestState はステージ間で共有するリクエストの状態。
type requestState struct {
	// principal は認証済みユーザー。未認証の場合はnil。
	principal *token.Principal
	// cacheKey はキャッシュ照会で計算したキー。照会しない場合は空。
	cacheKey string
	// fromCache はレスポンスがキャッシュから返されたことを示す。
	fromCache bool
}

// stage はパイプラインの1段。状態を参照・更新して判定を返す。
type stage func(c *gin.Context, st *requestState) Outcome

// route はプロキシ対象ルートの通過ポリシー。
type route struct {
	// capability はアクセスに必要な権限レベル。
	capability Capability
	// cacheTTL はGETレスポンスのキャッシュ有効期間。0はキャッシュしない。
	cacheTTL time.Duration
	// invalidate は変更成功時に破棄するキャッシュキーのプレフィックス。
	invalidate []string
	// rewriteQuery は上流へ転送するクエリを書き換える。nilならそのまま転送する。
	rewriteQuery func(st *requestState, query url.Values)
}

// cachedResponse はキャッシュに保存するレスポンスの形。
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// dispatch はルートのパイプラインを実行するハンドラを返す。
// 認証→認可→レート制限→キャッシュ照会→プロキシの順で実行し、
// レスポンス確定後にキャッシュの保存・破棄を行う。
func (s *Server) dispatch(rt route) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := &requestState{}
		stages := []stage{
			s.authenticate(rt),
			s.authorize(rt),
			s.throttle(),
			s.cacheLookup(rt),
			s.proxy(rt),
		}
		for _, stg := range stages {
			out := stg(c, st)
			switch out.kind {
			case outcomeContinue:
				continue
			case outcomeReject:
				s.reject(c, out)
				return
			case outcomeRespond:
				c.Data(out.status, out.contentType, out.body)
				s.finish(c, rt, st, out)
				return
			}
		}
	}
}

// guard はローカルハンドラ向けに認証・認可・レート制限のみを行う
// Ginミドルウェアを返す。認証済みプリンシパルはコンテキストに格納する。
func (s *Server) guard(capability Capability) gin.HandlerFunc {
	rt := route{capability: capability}
	return func(c *gin.Context) {
		st := &requestState{}
		for _, stg := range []stage{s.authenticate(rt), s.authorize(rt), s.throttle()} {
			out := stg(c, st)
			if out.kind == outcomeContinue {
				continue
			}
			s.reject(c, out)
			c.Abort()
			return
		}
		if st.principal != nil {
			c.Set(principalKey, *st.principal)
		}
		c.Next()
	}
}

// currentPrincipal はguardが格納したプリンシパルを取り出す。
func currentPrincipal(c *gin.Context) (token.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return token.Principal{}, false
	}
	p, ok := v.(token.Principal)
	return p, ok
}

// reject はエラーレスポンスを書き込む。
func (s *Server) reject(c *gin.Context, out Outcome) {
	if out.retryAfter > 0 {
		seconds := int(out.retryAfter.Round(time.Second) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
	}
	c.JSON(out.status, gin.H{"error": out.message})
}

// authenticate はAuthorizationヘッダーを検証するステージを返す。
// 公開ルートではトークンの有無・不正にかかわらず通過させるが、
// 有効なトークンがあればプリンシパルとして記録する。
func (s *Server) authenticate(rt route) stage {
	return func(c *gin.Context, st *requestState) Outcome {
		header := c.GetHeader("Authorization")
		if header == "" {
			if rt.capability == CapabilityNone {
				return Continue()
			}
			return Reject(http.StatusUnauthorized, "認証トークンが必要です")
		}

		principal, err := s.tokens.FromAuthorizationHeader(header)
		if err != nil {
			if rt.capability == CapabilityNone {
				return Continue()
			}
			return Reject(http.StatusUnauthorized, "認証トークンが無効です")
		}

		st.principal = &principal
		return Continue()
	}
}

// authorize は権限レベルを検証するステージを返す。
// 認証の有無は前段で確定しているため、ここでの拒否は403になる。
func (s *Server) authorize(rt route) stage {
	return func(_ *gin.Context, st *requestState) Outcome {
		if rt.capability.allows(st.principal) {
			return Continue()
		}
		return Reject(http.StatusForbidden, "この操作を行う権限がありません")
	}
}

// throttle は固定ウィンドウレート制限を適用するステージを返す。
// 認証済みならユーザー名、未認証ならクライアントIPをキーにする。
func (s *Server) throttle() stage {
	return func(c *gin.Context, st *requestState) Outcome {
		key := c.ClientIP()
		if st.principal != nil {
			key = st.principal.Username
		}

		decision := s.limiter.Allow(key)
		if decision.Allowed {
			return Continue()
		}

		s.collector.RateLimited()
		return RejectWithRetryAfter(http.StatusTooManyRequests,
			"リクエスト数が上限に達しました。しばらく待ってから再試行してください",
			decision.RetryAfter)
	}
}

// cacheLookup はキャッシュを照会するステージを返す。
// キャッシュ層の障害はリクエストを止めず、上流への転送で継続する。
func (s *Server) cacheLookup(rt route) stage {
	return func(c *gin.Context, st *requestState) Outcome {
		if c.Request.Method != http.MethodGet || rt.cacheTTL <= 0 {
			return Continue()
		}

		// 上流へ転送するクエリと同じ形でキーを計算する
		query := c.Request.URL.Query()
		if rt.rewriteQuery != nil {
			rt.rewriteQuery(st, query)
		}
		st.cacheKey = cache.Key(c.Request.URL.Path, query)

		data, found, err := s.cache.Get(c.Request.Context(), st.cacheKey)
		if err != nil {
			s.collector.CacheError()
			s.logger.Warn("キャッシュの照会に失敗しました",
				zap.String("key", st.cacheKey), zap.Error(err))
			return Continue()
		}
		if !found {
			s.collector.CacheMiss()
			return Continue()
		}

		var cached cachedResponse
		if err := json.Unmarshal(data, &cached); err != nil {
			s.collector.CacheError()
			s.logger.Warn("キャッシュエントリの復元に失敗しました",
				zap.String("key", st.cacheKey), zap.Error(err))
			_ = s.cache.Delete(c.Request.Context(), st.cacheKey)
			return Continue()
		}

		s.collector.CacheHit()
		st.fromCache = true
		c.Header("X-Cache", "HIT")
		return Respond(cached.Status, cached.ContentType, cached.Body)
	}
}

// proxy はカタログサービスへリクエストを転送するステージを返す。
// Gatewayの /api プレフィックスを取り除いたパスへ転送する。
func (s *Server) proxy(rt route) stage {
	return func(c *gin.Context, st *requestState) Outcome {
		upstreamPath := strings.TrimPrefix(c.Request.URL.Path, "/api")

		query := c.Request.URL.Query()
		if rt.rewriteQuery != nil {
			rt.rewriteQuery(st, query)
		}
		if len(query) > 0 {
			upstreamPath += "?" + query.Encode()
		}

		var body []byte
		if c.Request.Body != nil {
			var err error
			body, err = io.ReadAll(c.Request.Body)
			if err != nil {
				return Reject(http.StatusInternalServerError, "リクエスト本文の読み取りに失敗しました")
			}
		}

		resp, err := s.books.Do(c.Request.Context(), c.Request.Method, upstreamPath, body)
		if err != nil {
			var unavailable *httpclient.UnavailableError
			if errors.As(err, &unavailable) {
				s.collector.UpstreamFailure(unavailable.Service)
				s.logger.Error("カタログサービスが応答しません",
					zap.String("path", upstreamPath),
					zap.Int("attempts", unavailable.Attempts),
					zap.Error(err))
				return Reject(http.StatusServiceUnavailable, "書籍サービスが一時的に利用できません")
			}
			s.logger.Error("プロキシに失敗しました",
				zap.String("path", upstreamPath), zap.Error(err))
			return Reject(http.StatusInternalServerError, "内部エラーが発生しました")
		}

		if !st.fromCache && rt.cacheTTL > 0 && c.Request.Method == http.MethodGet {
			c.Header("X-Cache", "MISS")
		}
		return Respond(resp.StatusCode, resp.ContentType, resp.Body)
	}
}

// finish はレスポンス確定後のキャッシュ保存・破棄を行う。
func (s *Server) finish(c *gin.Context, rt route, st *requestState, out Outcome) {
	if st.fromCache {
		return
	}

	ctx := c.Request.Context()
	success := out.status >= 200 && out.status < 300

	// 成功したGETレスポンスを保存する
	if c.Request.Method == http.MethodGet && rt.cacheTTL > 0 && success && st.cacheKey != "" {
		data, err := json.Marshal(cachedResponse{
			Status:      out.status,
			ContentType: out.contentType,
			Body:        out.body,
		})
		if err == nil {
			err = s.cache.Set(ctx, st.cacheKey, data, rt.cacheTTL)
		}
		if err != nil {
			s.collector.CacheError()
			s.logger.Warn("キャッシュの保存に失敗しました",
				zap.String("key", st.cacheKey), zap.Error(err))
		}
		return
	}

	// 成功した変更操作は関連キャッシュを破棄する
	if c.Request.Method != http.MethodGet && success {
		exact := cache.Key(c.Request.URL.Path, nil)
		if err := s.cache.Delete(ctx, exact); err != nil {
			s.collector.CacheError()
			s.logger.Warn("キャッシュの破棄に失敗しました",
				zap.String("key", exact), zap.Error(err))
		}
		for _, prefix := range rt.invalidate {
			if err := s.cache.DeletePrefix(ctx, prefix); err != nil {
				s.collector.CacheError()
				s.logger.Warn("キャッシュの一括破棄に失敗しました",
					zap.String("prefix", prefix), zap.Error(err))
			}
		}
	}
}
