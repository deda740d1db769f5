package main

import (
	"fmt"
	"os"
)

func main() {
	// 初始化控制台
	InitFlag()
	// 开始安全退出任务
	InitSafeExit()
	// 初始化配置
	InitConf(configPath)
	// 初始化日志
	InitLog()

	// 开始会话
	s, err := NewSession(conf, log)
	if err != nil {
		log.Fatalf("start session error ~ %s", err)
	}
	// 注册安全退出
	SafeExitInst.Register(s.Close)

	if noStdin {
		select {}
	}
	fmt.Printf("%s %s, session %s, type a command (-h for help)\n", conf.App.Title, conf.App.Version, s.ID)
	if err := s.RunCommands(os.Stdin, os.Stdout); err != nil {
		log.Errorf("read commands error ~ %s", err)
	}
	SafeExitInst.Run()
}
