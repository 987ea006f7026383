package globals

import (
	"time"

	"github.com/modulrcloud/chain-tracker/structures"
)

const TRACKER_VERSION = "1.3.0"

var CONFIGURATION structures.TrackerConfig

var START_TIME = time.Now()
