package main

import (
	"context"
	"time"

	"avrcore-go/boot"
	"avrcore-go/drivers/eeprom"
	"avrcore-go/drivers/usart"
	"avrcore-go/internal/platform"
	"avrcore-go/services/monitor"
)

func main() {
	p := platform.Open()
	cause := p.ResetCause()
	boot.Start(p.Flags, cause)

	cfg := usart.DefaultConfig()
	cfg.Options |= usart.RxEnable | usart.AddCarriageReturn
	u, err := usart.New(p.USART, p.IRQ, p.Flags, cfg)
	if err != nil {
		println("Error: usart:", err.Error())
		return
	}
	u.Configure()

	port := usart.NewPort(u)
	port.WriteString("\nreset: " + cause.String() + " flags " + p.Flags.Load().String() + "\n")

	ee := eeprom.New(p.EEPROM, p.IRQ, p.Flags, eeprom.Config{})
	mon := monitor.New(u, ee, p.Flags)
	mon.Banner()
	println("Info: monitor on usart0")
	mon.Run(context.Background(), 2*time.Millisecond)
}
