package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ MatchResolver      = (*Matcher)(nil)
	_ MatchResolver      = (*Service)(nil)
	_ SubscriptionReader = (*MemorySubscriptionStore)(nil)
	_ ConfigProvider     = (*CfgxConfigProvider)(nil)
	_ OptionsResolver    = GoOptionsResolver{}
	_ RawConfigLoader    = StaticConfigLoader{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
