package check

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/optimode/emailfinder/internal/ttlcache"
)

const (
	randomLocalLen  = 15
	randomLocalPool = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// CatchAllConfig is the catch-all detector configuration.
type CatchAllConfig struct {
	// TTL is how long a domain's verdict is reused (default: 10m).
	TTL time.Duration
	// Recheck disables verdict caching: every call probes again.
	Recheck bool
	Log     logrus.FieldLogger
}

// CatchAllDetector finds domains whose MX accepts any recipient, by probing
// a random local part that almost certainly does not exist.
type CatchAllDetector struct {
	prober   *SMTPProber
	verdicts *ttlcache.Cache[bool]
	recheck  bool
	log      logrus.FieldLogger
}

func NewCatchAllDetector(p *SMTPProber, cfg CatchAllConfig) *CatchAllDetector {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return &CatchAllDetector{
		prober:   p,
		verdicts: ttlcache.New[bool](cfg.TTL),
		recheck:  cfg.Recheck,
		log:      orDiscard(cfg.Log),
	}
}

// IsCatchAll reports whether mxHost accepts a fabricated recipient on domain.
// Any probe failure counts as "not catch-all" and is not cached, so a network
// hiccup never downgrades a valid address.
func (d *CatchAllDetector) IsCatchAll(ctx context.Context, domain, mxHost, sender string) bool {
	key := strings.ToLower(domain) + "|" + strings.ToLower(mxHost)
	if d.recheck {
		d.verdicts.Forget(key)
	}
	accepted, err := d.verdicts.Get(ctx, key, func(ctx context.Context) (bool, error) {
		rcpt := RandomLocalPart(randomLocalLen) + "@" + domain
		res := d.prober.probe(ctx, KindCatchAll, mxHost, sender, rcpt)
		if res.Err != nil {
			return false, res.Err
		}
		return res.Code == 250, nil
	})
	log := d.log.WithFields(logrus.Fields{"domain": domain, "mx": mxHost})
	if err != nil {
		log.WithError(err).Debug("catch-all probe failed, assuming not catch-all")
		return false
	}
	log.WithField("catch_all", accepted).Debug("catch-all verdict")
	return accepted
}

// RandomLocalPart returns n random lowercase alphanumeric characters.
func RandomLocalPart(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(randomLocalPool[rand.Intn(len(randomLocalPool))])
	}
	return b.String()
}

// String is for debugging.
func (d *CatchAllDetector) String() string {
	return fmt.Sprintf("CatchAllDetector{cached=%d recheck=%v}", d.verdicts.Len(), d.recheck)
}
